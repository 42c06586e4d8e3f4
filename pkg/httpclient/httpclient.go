// Package httpclient implements the rate & retry layer (spec §4.1): a
// process-wide set of per-provider token-bucket limiters and a
// fetch-with-retry helper wrapping net/http.
//
// Modeled after the teacher's pkg/txlistener: a small reusable client
// configured with functional options, exposing one blocking call that
// handles its own timeout/retry bookkeeping internally.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UpstreamError is returned when FetchWithRetry exhausts its retries.
type UpstreamError struct {
	Status int // 0 if the failure was never an HTTP response (network/timeout)
	Cause  error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error: status=%d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("upstream error: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// Limiters is a process-wide registry of per-provider token buckets
// (spec §4.1 defaults: aggregator A 50/s, aggregator B 30/s, aggregator C
// 10/s). It is safe for concurrent use and is meant to be constructed
// once and shared.
type Limiters struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	defaults map[string]rate.Limit
}

// NewLimiters creates a limiter registry seeded with the given per-provider
// rates (requests per second). Providers not present default to 20/s.
func NewLimiters(ratesPerSecond map[string]float64) *Limiters {
	defaults := make(map[string]rate.Limit, len(ratesPerSecond))
	for k, v := range ratesPerSecond {
		defaults[k] = rate.Limit(v)
	}
	return &Limiters{
		buckets:  make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

// Acquire blocks until the named provider's bucket admits the caller.
func (l *Limiters) Acquire(ctx context.Context, provider string) error {
	return l.bucket(provider).Wait(ctx)
}

func (l *Limiters) bucket(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[provider]; ok {
		return b
	}
	limit, ok := l.defaults[provider]
	if !ok {
		limit = rate.Limit(20)
	}
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}
	b := rate.NewLimiter(limit, burst)
	l.buckets[provider] = b
	return b
}

// Client performs rate-limited, retried HTTP JSON fetches against one
// upstream provider.
type Client struct {
	http       *http.Client
	limiters   *Limiters
	provider   string
	maxRetries int
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 15s per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries overrides the default retry count of 3.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New creates a Client scoped to one provider's rate bucket.
func New(provider string, limiters *Limiters, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{},
		limiters:   limiters,
		provider:   provider,
		maxRetries: 3,
		timeout:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchJSON issues a GET request with Accept: application/json, retrying
// per spec §4.1, and unmarshals the response body into out.
func (c *Client) FetchJSON(ctx context.Context, url string, out any) error {
	body, err := c.FetchWithRetry(ctx, url)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// PostJSON issues a POST request with a JSON-encoded body (used for
// JSON-RPC style upstreams), retrying with the same policy as
// FetchWithRetry, and unmarshals the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiters.Acquire(ctx, c.provider); err != nil {
			return err
		}

		body, status, err := c.postOnce(ctx, url, reqBody)
		if err == nil && status >= 200 && status < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", url, err)
			}
			return nil
		}

		if err != nil {
			lastErr = err
			lastStatus = 0
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !sleep(ctx, time.Duration(attempt+1)*500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		lastErr = fmt.Errorf("unexpected status %d", status)
		lastStatus = status
		if status == http.StatusTooManyRequests {
			if !sleep(ctx, time.Duration(attempt+1)*time.Second) {
				return ctx.Err()
			}
			attempt--
			continue
		}
	}

	return &UpstreamError{Status: lastStatus, Cause: lastErr}
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// FetchWithRetry issues a GET request, retrying on 429 (wait
// 1s*(attempt+1), does not consume the retry budget), network/timeout
// errors (wait 0.5s*(attempt+1)), and any other non-2xx status (retried
// until exhausted, then UpstreamError).
func (c *Client) FetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiters.Acquire(ctx, c.provider); err != nil {
			return nil, err
		}

		body, status, err := c.doOnce(ctx, url)
		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}

		if err != nil {
			lastErr = err
			lastStatus = 0
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !sleep(ctx, time.Duration(attempt+1)*500*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}

		lastErr = fmt.Errorf("unexpected status %d", status)
		lastStatus = status
		if status == http.StatusTooManyRequests {
			if !sleep(ctx, time.Duration(attempt+1)*time.Second) {
				return nil, ctx.Err()
			}
			// A 429 does not consume the retry budget.
			attempt--
			continue
		}
	}

	return nil, &UpstreamError{Status: lastStatus, Cause: lastErr}
}

func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsUpstreamError reports whether err is (or wraps) an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
