package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type call struct {
	user string
	text string
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
	out   *types.Outcome
	err   error
}

func (f *fakeHandler) Handle(_ context.Context, userID, text string) (*types.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{user: userID, text: text})
	return f.out, f.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryReturnsOutcome(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{out: types.OK("Great choice!", chat.AddFriendsButtons())}
	router := NewRouter(h, slog.Default())

	rec := post(t, router, `{"text":"  Top choice: 1 ","user_name":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body)
	}
	var resp QueryResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Great choice!" || len(resp.Attachments) != 1 || resp.Attachments[0].Actions[1].Msg != "no_clicked" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(h.calls) != 1 || h.calls[0] != (call{user: "alice", text: "Top choice: 1"}) {
		t.Fatalf("unexpected calls %+v", h.calls)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestQueryDefaultsUser(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{out: types.OK("hi")}
	rec := post(t, NewRouter(h, nil), `{"text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if h.calls[0].user != DefaultUser {
		t.Fatalf("expected user %q, got %q", DefaultUser, h.calls[0].user)
	}
}

func TestQueryEmptyTextAnswersEmptyObject(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{out: types.OK("never")}
	rec := post(t, NewRouter(h, nil), `{"text":"   ","user_name":"alice"}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body)
	}
	if len(h.calls) != 0 {
		t.Fatal("empty text must not reach the tracker")
	}
}

func TestQueryDegradedOutcomeIsStillOK(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{out: types.Failed(types.OutcomeSearchUnavailable, "⚠️ Yelp API request failed. Error 500: boom", types.ErrSearchUnavailable)}
	rec := post(t, NewRouter(h, nil), `{"text":"go","user_name":"alice"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "500") {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body)
	}
}

func TestQueryMalformedJSON(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{}
	rec := post(t, NewRouter(h, nil), `{"text":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env ErrorEnvelope
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Error.Code != "bad_request" {
		t.Fatalf("unexpected body %q", rec.Body)
	}
}

func TestQueryStoreFailureApologizes(t *testing.T) {
	t.Parallel()
	h := &fakeHandler{err: errors.New("disk full")}
	rec := post(t, NewRouter(h, nil), `{"text":"hi","user_name":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("the webhook should still answer 200, got %d", rec.Code)
	}
	var resp QueryResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Text != UnavailableText {
		t.Fatalf("unexpected body %q", rec.Body)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Fatal("internal errors must not leak to the client")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	NewRouter(&fakeHandler{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health %d %q", rec.Code, rec.Body)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", NewRouter(&fakeHandler{}, nil), time.Second, slog.Default())
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
