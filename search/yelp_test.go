package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbxark/remi/types"
)

func TestRadiusMeters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		miles float64
		want  int
	}{
		{0, DefaultRadiusMeter},
		{-3, DefaultRadiusMeter},
		{1, 1609},
		{5, 8047},
		{20, 32187},
		{35, 32187},
		{1000, 32187},
	}
	for _, tt := range tests {
		if got := RadiusMeters(tt.miles); got != tt.want {
			t.Errorf("RadiusMeters(%v) = %d, want %d", tt.miles, got, tt.want)
		}
	}
}

func TestRadiusMetersNeverExceedsCap(t *testing.T) {
	t.Parallel()
	for miles := 0.1; miles < 500; miles *= 1.7 {
		got := RadiusMeters(miles)
		if got <= 0 || got > MaxRadiusMeters || got > 32187 {
			t.Fatalf("RadiusMeters(%v) = %d out of range", miles, got)
		}
	}
}

const noodleBarBody = `{"businesses":[{"name":"Noodle Bar","rating":4.5,"location":{"display_address":["1 Main St","Boston, MA"]}}]}`

func TestYelpClientSearch(t *testing.T) {
	t.Parallel()
	var gotQuery string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(noodleBarBody))
	}))
	defer srv.Close()

	c := NewYelpClient("secret", WithBaseURL(srv.URL), WithRateLimit(0, 0))
	got, err := c.Search(context.Background(), types.Slots{Cuisine: "ramen", Budget: 2, Location: "Boston, MA", RadiusMiles: 35})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Noodle Bar" || got[0].DisplayAddress != "1 Main St, Boston, MA" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	for _, want := range []string{"term=ramen", "price=2", "radius=32187", "limit=5", "sort_by=best_match", "location=Boston%2C+MA"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestYelpClientSharesConcurrentIdenticalSearches(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write([]byte(noodleBarBody))
	}))
	defer srv.Close()

	c := NewYelpClient("k", WithBaseURL(srv.URL), WithRateLimit(0, 0))
	slots := types.Slots{Cuisine: "ramen", Budget: 2, Location: "Boston, MA", RadiusMiles: 5}
	const callers = 8
	results := make([][]types.Candidate, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Search(context.Background(), slots)
		}()
	}
	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one request to Yelp, got %d", n)
	}
	for i := range callers {
		if errs[i] != nil || len(results[i]) != 1 || results[i][0].Name != "Noodle Bar" {
			t.Fatalf("caller %d: %+v, %v", i, results[i], errs[i])
		}
	}
	results[0][0].Name = "changed"
	if results[1][0].Name != "Noodle Bar" {
		t.Fatal("callers must not share the result slice")
	}
}

func TestYelpClientDistinctSearchesAreNotShared(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(noodleBarBody))
	}))
	defer srv.Close()

	c := NewYelpClient("k", WithBaseURL(srv.URL), WithRateLimit(0, 0))
	for _, cuisine := range []string{"ramen", "pho"} {
		if _, err := c.Search(context.Background(), types.Slots{Cuisine: cuisine, Location: "Boston"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("expected two requests, got %d", n)
	}
}

func TestYelpClientServerErrorIsRetriedThenReported(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewYelpClient("k", WithBaseURL(srv.URL), WithMaxTries(3), WithRateLimit(0, 0))
	_, err := c.Search(context.Background(), types.Slots{Cuisine: "ramen", Budget: 1, Location: "Boston", RadiusMiles: 2})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 500 || !strings.Contains(se.Body, "upstream exploded") {
		t.Fatalf("unexpected status error %+v", se)
	}
	if !errors.Is(err, types.ErrSearchUnavailable) {
		t.Fatalf("StatusError must unwrap to ErrSearchUnavailable")
	}
	if n := hits.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestYelpClientClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":{"code":"VALIDATION_ERROR"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewYelpClient("k", WithBaseURL(srv.URL), WithMaxTries(5), WithRateLimit(0, 0))
	_, err := c.Search(context.Background(), types.Slots{Cuisine: "ramen", Location: "nowhere", RadiusMiles: 1})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestYelpClientRecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(noodleBarBody))
	}))
	defer srv.Close()

	c := NewYelpClient("k", WithBaseURL(srv.URL), WithTimeout(time.Second), WithRateLimit(0, 0))
	got, err := c.Search(context.Background(), types.Slots{Cuisine: "ramen", Location: "Boston", RadiusMiles: 1})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected recovery, got %+v err=%v", got, err)
	}
}

func TestFormatResults(t *testing.T) {
	t.Parallel()
	got := FormatResults([]types.Candidate{
		{Name: "Noodle Bar", Rating: 4.5, DisplayAddress: "1 Main St, Boston, MA"},
		{Name: "Ramen Spot", Rating: 4},
	})
	want := "1. **Noodle Bar** (4.5⭐) in 1 Main St, Boston, MA\n2. **Ramen Spot** (4⭐)\n"
	if got != want {
		t.Fatalf("FormatResults = %q, want %q", got, want)
	}
}
