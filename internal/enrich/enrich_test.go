package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

func newStore(t *testing.T) *cachestore.Store {
	t.Helper()
	s, err := cachestore.Open(filepath.Join(t.TempDir(), "store.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func equityWithISIN(t *testing.T, isin string) domain.RawEquity {
	t.Helper()
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO", ISIN: isin})
	require.NoError(t, err)
	return eq
}

func TestBuildAttemptsOrdersISINThenCUSIPThenFuzzy(t *testing.T) {
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO", ISIN: "FR0000000001", CUSIP: "037833100"})
	require.NoError(t, err)

	s := &Session{}
	attempts := s.buildAttempts(eq)
	require.Len(t, attempts, 3)
	assert.Equal(t, "FR0000000001", attempts[0].query)
	assert.Equal(t, "037833100", attempts[1].query)
	assert.True(t, attempts[2].fuzzy)
}

func TestBuildAttemptsSkipsAbsentIdentifiers(t *testing.T) {
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO"})
	require.NoError(t, err)

	s := &Session{}
	attempts := s.buildAttempts(eq)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].fuzzy)
}

func TestLookupRetriesOnceOn401(t *testing.T) {
	var tokenCalls, searchCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		w.Write([]byte("tok-" + string(rune('0'+n))))
	})
	mux.HandleFunc("/auth/search", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&searchCalls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quotes":[{"symbol":"FOO","longname":"FOO INC","quoteType":"EQUITY"}]}`))
	})
	mux.HandleFunc("/auth/quoteSummary/FOO", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quoteSummary":{"result":[{"price":{"regularMarketPrice":1.5}}]}}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newStore(t)
	session := New(httpfactory.New(httpfactory.DefaultConfig()), store, srv.URL, srv.URL+"/auth", srv.URL+"/token", nil, 150, 10)

	eq := equityWithISIN(t, "FR0000000001")
	summary, err := session.Lookup(context.Background(), eq)
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searchCalls), "401 must trigger exactly one retry")
}

func TestLookupCachesBySymbol(t *testing.T) {
	var searchCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("tok")) })
	mux.HandleFunc("/auth/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searchCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quotes":[{"symbol":"FOO","longname":"FOO INC","quoteType":"EQUITY"}]}`))
	})
	mux.HandleFunc("/auth/quoteSummary/FOO", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quoteSummary":{"result":[{"price":{"regularMarketPrice":1.5}}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newStore(t)
	session := New(httpfactory.New(httpfactory.DefaultConfig()), store, srv.URL, srv.URL+"/auth", srv.URL+"/token", nil, 150, 10)

	eq := equityWithISIN(t, "FR0000000001")
	_, err := session.Lookup(context.Background(), eq)
	require.NoError(t, err)
	_, err = session.Lookup(context.Background(), eq)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&searchCalls))
}

func TestLookupReturnsEmptySummaryWhenAllAttemptsFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("tok")) })
	mux.HandleFunc("/auth/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quotes":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newStore(t)
	session := New(httpfactory.New(httpfactory.DefaultConfig()), store, srv.URL, srv.URL+"/auth", srv.URL+"/token", nil, 150, 10)

	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO"})
	require.NoError(t, err)

	_, err = session.Lookup(context.Background(), eq)
	assert.Error(t, err)
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "empty-summary", lookupErr.Kind)
}

func TestPickBestRejectsBelowThreshold(t *testing.T) {
	s := &Session{FuzzyMinScore: 1000}
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO"})
	require.NoError(t, err)

	candidates := []quote{
		{Symbol: "AAA", LongName: "COMPLETELY DIFFERENT"},
		{Symbol: "BBB", LongName: "ANOTHER NAME"},
	}
	_, err = s.pickBest(candidates, eq)
	assert.Error(t, err)
}

func TestPickBestAcceptsAboveThreshold(t *testing.T) {
	s := &Session{FuzzyMinScore: 10}
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO"})
	require.NoError(t, err)

	candidates := []quote{
		{Symbol: "ZZZ", LongName: "NOTHING ALIKE AT ALL HERE"},
		{Symbol: "FOO", LongName: "FOO INC"},
	}
	got, err := s.pickBest(candidates, eq)
	require.NoError(t, err)
	assert.Equal(t, "FOO", got.Symbol)
}
