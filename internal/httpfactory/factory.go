// Package httpfactory produces configured HTTP clients with shared
// defaults (timeouts, retries, connection limits, headers), so every
// adapter in internal/feeds, internal/refid, internal/fxconv and
// internal/enrich gets the same baseline policy instead of silently
// drifting per-vendor. Adapted from the teacher's
// internal/infrastructure/httpclient.ClientPool: same semaphore-gated
// Do/backoff/retryable-status shape, generalised with functional-option
// per-call overrides (vendor-specific headers) instead of a second config
// struct.
package httpfactory

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the shared defaults every Client is built from.
type Config struct {
	ConnectTimeout      time.Duration
	RequestTimeout      time.Duration
	MaxConnsPerHost     int
	MaxIdleConns        int
	MaxConcurrency      int
	RatePerSecond       float64
	RateBurst           int
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	UserAgent           string
	AcceptLanguage      string
}

// DefaultConfig returns the baseline policy described in spec.md §4.2.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  5 * time.Second,
		RequestTimeout:  15 * time.Second,
		MaxConnsPerHost: 16,
		MaxIdleConns:    64,
		MaxConcurrency:  8,
		RatePerSecond:   10,
		RateBurst:       10,
		MaxRetries:      3,
		BackoffBase:     200 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		UserAgent:       "equityagg/1.0",
		AcceptLanguage:  "en-US,en;q=0.9",
	}
}

// Client wraps a stdlib *http.Client with a concurrency semaphore, a
// token-bucket rate limiter and retry/backoff on transient failures.
type Client struct {
	cfg       Config
	http      *http.Client
	semaphore chan struct{}
	limiter   *rate.Limiter
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     cfg.MaxConnsPerHost,
				MaxIdleConns:        cfg.MaxIdleConns,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
		semaphore: make(chan struct{}, cfg.MaxConcurrency),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
}

// Option overrides a single call's request, e.g. a vendor-specific header.
type Option func(*http.Request)

// WithHeader sets a single header on the outgoing request, overriding the
// factory's defaults if it collides.
func WithHeader(key, value string) Option {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (c *Client) applyDefaultHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/html;q=0.8, */*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Connection", "keep-alive")
}

// Do executes req honouring the concurrency semaphore, rate limiter and
// retry/backoff policy, applying any per-call Options over the defaults.
func (c *Client) Do(ctx context.Context, req *http.Request, opts ...Option) (*http.Response, error) {
	c.applyDefaultHeaders(req)
	for _, opt := range opts {
		opt(req)
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		if isRetryableStatus(resp.StatusCode) && attempt < c.cfg.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	backoff := c.cfg.BackoffBase * time.Duration(1<<uint(attempt))
	if backoff > c.cfg.BackoffMax {
		backoff = c.cfg.BackoffMax
	}
	jitter := time.Duration(rand.Float64() * 0.2 * float64(backoff))
	return backoff + jitter
}

func isRetryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

// SafeFetch wraps fn with a per-call timeout; on timeout or error it
// returns ok=false ("absent") rather than propagating, per spec.md §5's
// safe-fetch wrapper (default 10s).
func SafeFetch[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (result T, ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			var zero T
			return zero, false
		}
		return o.val, true
	case <-callCtx.Done():
		var zero T
		return zero, false
	}
}
