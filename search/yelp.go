// Package search finds restaurants for a completed set of slots through the
// Yelp Fusion business search API.
package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tbxark/remi/types"
)

const (
	DefaultBaseURL     = "https://api.yelp.com/v3/businesses/search"
	DefaultLimit       = 5
	DefaultSortBy      = "best_match"
	MaxRadiusMeters    = 40000
	DefaultRadiusMeter = 20000
	metersPerMile      = 1609.344
)

type Searcher interface {
	Search(ctx context.Context, slots types.Slots) ([]types.Candidate, error)
}

// StatusError is a non-200 answer from Yelp.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("yelp search: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return types.ErrSearchUnavailable
}

func (e *StatusError) transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RadiusMeters converts a radius in miles to Yelp's meters: clamped to
// (0, 20] miles first, then capped at Yelp's 40 000 m. Unset means 20 000 m.
func RadiusMeters(miles float64) int {
	if miles <= 0 || math.IsNaN(miles) {
		return DefaultRadiusMeter
	}
	miles = math.Min(miles, types.MaxRadiusMiles)
	meters := int(math.Round(miles * metersPerMile))
	if meters < 1 {
		meters = 1
	}
	return min(meters, MaxRadiusMeters)
}

type YelpClient struct {
	apiKey     string
	baseURL    string
	limit      int
	sortBy     string
	timeout    time.Duration
	maxTries   uint
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	// inflight collapses identical concurrent queries into one request.
	inflight   singleflight.Group
}

type Option func(*YelpClient)

func WithBaseURL(u string) Option {
	return func(c *YelpClient) { c.baseURL = u }
}

func WithLimit(n int) Option {
	return func(c *YelpClient) { c.limit = n }
}

func WithTimeout(d time.Duration) Option {
	return func(c *YelpClient) { c.timeout = d }
}

// WithMaxTries bounds attempts per search, including the first one.
func WithMaxTries(n uint) Option {
	return func(c *YelpClient) { c.maxTries = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *YelpClient) { c.httpClient = hc }
}

// WithRateLimit caps outbound requests per second; rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *YelpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *YelpClient) { c.logger = logger }
}

func NewYelpClient(apiKey string, opts ...Option) *YelpClient {
	c := &YelpClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		limit:      DefaultLimit,
		sortBy:     DefaultSortBy,
		timeout:    10 * time.Second,
		maxTries:   3,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query builds the request parameters for slots.
func (c *YelpClient) Query(slots types.Slots) url.Values {
	q := url.Values{}
	q.Set("term", slots.Cuisine)
	q.Set("location", slots.Location)
	if slots.Budget >= 1 && slots.Budget <= 4 {
		q.Set("price", strconv.Itoa(slots.Budget))
	}
	q.Set("radius", strconv.Itoa(RadiusMeters(slots.RadiusMiles)))
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("sort_by", c.sortBy)
	return q
}

type businessSearchResponse struct {
	Businesses []struct {
		Name     string  `json:"name"`
		Rating   float64 `json:"rating"`
		Location struct {
			DisplayAddress []string `json:"display_address"`
		} `json:"location"`
	} `json:"businesses"`
}

// Search asks Yelp for slots. Callers searching the same query at the same
// time share one request and each get their own copy of the results.
func (c *YelpClient) Search(ctx context.Context, slots types.Slots) ([]types.Candidate, error) {
	key := c.Query(slots).Encode()
	v, err, shared := c.inflight.Do(key, func() (any, error) {
		return c.search(ctx, c.baseURL+"?"+key, slots)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Joined in-flight Yelp search", "term", slots.Cuisine, "location", slots.Location)
	}
	return slices.Clone(v.([]types.Candidate)), nil
}

func (c *YelpClient) search(ctx context.Context, endpoint string, slots types.Slots) ([]types.Candidate, error) {
	attempt := 0
	op := func() ([]types.Candidate, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("%w: %w", types.ErrSearchUnavailable, err))
			}
		}
		candidates, retryable, err := c.do(ctx, endpoint)
		if err == nil {
			return candidates, nil
		}
		if !retryable || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("Yelp search failed, retrying", "attempt", attempt, "error", err)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	candidates, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(c.maxTries, 1)),
	)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Yelp search done", "term", slots.Cuisine, "location", slots.Location, "results", len(candidates), "attempts", attempt)
	return candidates, nil
}

// do reports whether a failed call is worth repeating: network errors, 429
// and 5xx are; everything else is not.
func (c *YelpClient) do(ctx context.Context, endpoint string) ([]types.Candidate, bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %w", types.ErrSearchUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", types.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %w", types.ErrSearchUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return nil, se.transient(), se
	}

	var parsed businessSearchResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %w", types.ErrSearchUnavailable, err)
	}
	candidates := make([]types.Candidate, 0, len(parsed.Businesses))
	for _, b := range parsed.Businesses {
		candidates = append(candidates, types.Candidate{
			Name:           b.Name,
			Rating:         b.Rating,
			DisplayAddress: strings.Join(b.Location.DisplayAddress, ", "),
		})
	}
	return candidates, false, nil
}

var _ Searcher = (*YelpClient)(nil)
