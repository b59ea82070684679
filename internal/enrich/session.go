// Package enrich implements the Enrichment Vendor Client (spec.md §4.6): a
// session-oriented client that acquires an anti-CSRF token, caps
// concurrent streams, retries once on 401, and resolves a RawEquity
// against a supplementary vendor by ISIN, then CUSIP, then fuzzy name
// match. Grounded on internal/infrastructure/httpclient/pool.go's
// sync.RWMutex-guarded stats pattern, generalised to a double-checked-lock
// cached token.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

const cacheName = "enrich_cache"

// Session owns one HTTP client, a lazily-acquired anti-CSRF token, and a
// semaphore capping concurrent streams.
type Session struct {
	Client           *httpfactory.Client
	Store            *cachestore.Store
	BaseURL          string
	AuthPrefix       string
	WarmupURLs       []string
	TokenURL         string
	FuzzyMinScore    int

	tokenMu sync.RWMutex
	token   string

	sem feeds.Semaphore
}

// New builds a Session with a stream cap of streamCap concurrent requests.
func New(client *httpfactory.Client, store *cachestore.Store, baseURL, authPrefix, tokenURL string, warmupURLs []string, fuzzyMinScore, streamCap int) *Session {
	return &Session{
		Client:        client,
		Store:         store,
		BaseURL:       baseURL,
		AuthPrefix:    authPrefix,
		WarmupURLs:    warmupURLs,
		TokenURL:      tokenURL,
		FuzzyMinScore: fuzzyMinScore,
		sem:           feeds.NewSemaphore(streamCap),
	}
}

// Close releases the session. The underlying *http.Client has no explicit
// close; this exists to satisfy the spec's session-lifecycle contract and
// to be a natural place to add idle-connection draining later.
func (s *Session) Close() error { return nil }

// currentToken returns the cached anti-CSRF token, bootstrapping it on first use.
// Double-checked locking: the common case (token already set) never takes
// the write lock.
func (s *Session) currentToken(ctx context.Context) (string, error) {
	s.tokenMu.RLock()
	if s.token != "" {
		t := s.token
		s.tokenMu.RUnlock()
		return t, nil
	}
	s.tokenMu.RUnlock()

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	t, err := s.bootstrap(ctx)
	if err != nil {
		return "", err
	}
	s.token = t
	return t, nil
}

func (s *Session) invalidateToken() {
	s.tokenMu.Lock()
	s.token = ""
	s.tokenMu.Unlock()
}

func (s *Session) bootstrap(ctx context.Context) (string, error) {
	for _, u := range s.WarmupURLs {
		if err := s.sem.Acquire(ctx); err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err == nil {
			if resp, err := s.Client.Do(ctx, req); err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
		s.sem.Release()
	}

	if err := s.sem.Acquire(ctx); err != nil {
		return "", err
	}
	defer s.sem.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.TokenURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return "", apperr.NewVendorError("enrich_bootstrap", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// doAuthenticated performs req against an authenticated endpoint, attaching
// the session token as a query parameter, and retries exactly once on a
// 401 response after re-bootstrapping.
func (s *Session) doAuthenticated(ctx context.Context, buildReq func(token string) (*http.Request, error)) (*http.Response, error) {
	if err := s.sem.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release()

	token, err := s.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := buildReq(token)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		s.invalidateToken()
		token, err = s.currentToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err = buildReq(token)
		if err != nil {
			return nil, err
		}
		return s.Client.Do(ctx, req)
	}

	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("enrich: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
