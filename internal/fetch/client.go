// Package fetch retrieves device documents from their upstream HTTP
// endpoints. Every call goes through a per-host circuit breaker and is
// retried with jittered exponential backoff on transport errors, 429 and 5xx.
// Failures are reported as *FetchError.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 8 << 20
	defaultTripAfter    = 5
)

// RetryPolicy configures retries of a single Fetch.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is given.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// Client fetches JSON documents over HTTP.
type Client struct {
	http         *http.Client
	retry        RetryPolicy
	userAgent    string
	maxBodyBytes int64
	tripAfter    uint32
	sleepFn      func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxBodyBytes caps the accepted response size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBodyBytes = n }
}

// WithTripAfter opens a host's breaker once more than n consecutive calls
// have failed.
func WithTripAfter(n uint32) Option {
	return func(c *Client) { c.tripAfter = n }
}

// WithSleepFunc replaces the wait between retries. Intended for tests.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleepFn = fn }
}

// WithLogger sets the logger used for retries and breaker transitions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client. A nil httpClient gets DefaultTimeout.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	c := &Client{
		http:         httpClient,
		retry:        DefaultRetryPolicy(),
		userAgent:    "tomcamp-dashboard",
		maxBodyBytes: DefaultMaxBodyBytes,
		tripAfter:    defaultTripAfter,
		sleepFn:      sleepContext,
		logger:       slog.Default(),
		breakers:     make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs a GET on rawURL and returns the response body. Only 2xx
// responses succeed.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.New("missing host")
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	breaker := c.breakerFor(u.Host)

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, rawURL)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt >= c.retry.MaxRetries || !retryable(ctx, err) {
			break
		}
		wait := c.backoff(attempt, err)
		c.logger.Debug("retrying upstream fetch",
			"url", rawURL,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		if err := c.sleepFn(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	fe := &FetchError{URL: rawURL, Err: lastErr}
	var se *statusError
	if errors.As(lastErr, &se) {
		fe.StatusCode = se.code
	}
	return nil, fe
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("close upstream body", "url", rawURL, "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &statusError{code: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	tripAfter := c.tripAfter
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > tripAfter
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state changed",
				"host", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[host] = cb
	return cb
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// backoff honours Retry-After, otherwise picks a jittered wait in
// [MinWait, min(MaxWait, MinWait*2^attempt)].
func (c *Client) backoff(attempt int, err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > 0 {
		return min(se.retryAfter, c.retry.MaxWait)
	}

	minWait := float64(c.retry.MinWait)
	ceiling := math.Min(minWait*math.Pow(2, float64(attempt)), float64(c.retry.MaxWait))
	if ceiling <= minWait {
		return c.retry.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(ceiling-minWait))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
