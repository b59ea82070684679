package refid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
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

func rawEquity(t *testing.T, symbol string) domain.RawEquity {
	t.Helper()
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: symbol + " INC", Symbol: symbol})
	require.NoError(t, err)
	return eq
}

func TestIsValidFIGI(t *testing.T) {
	assert.True(t, isValidFIGI("BBG000B9XRY4"))
	assert.False(t, isValidFIGI("short"))
	assert.False(t, isValidFIGI("bbg000b9xry4"))
}

// S5: Identify drops unmapped — exercised at the resolver level: a second
// query_number pointing to the same index must not overwrite a prior valid
// FIGI, and an empty name falls back to securityName.
func TestResolveBatchFirstValidFIGIWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"query_number":0,"name":"FOO INC","ticker":"FOO","figi":"BBG000000001"},
			{"query_number":0,"name":"IGNORED","ticker":"XXX","figi":"BBG000000002"},
			{"query_number":1,"name":"","securityName":"BAR CORP","ticker":"BAR","figi":"BBG000000003"}
		]}`))
	}))
	defer srv.Close()

	store := newStore(t)
	resolver := New(httpfactory.New(httpfactory.DefaultConfig()), srv.URL, "test-key", store, 100, 10)

	equities := []domain.RawEquity{rawEquity(t, "FOO"), rawEquity(t, "BAR")}
	triplets, err := resolver.Resolve(context.Background(), equities)
	require.NoError(t, err)
	require.Len(t, triplets, 2)
	assert.Equal(t, "BBG000000001", triplets[0].FIGI)
	assert.Equal(t, "FOO INC", triplets[0].Name)
	assert.Equal(t, "BBG000000003", triplets[1].FIGI)
	assert.Equal(t, "BAR CORP", triplets[1].Name, "falls back to securityName when name is empty")
}

func TestResolveDegradesBatchOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newStore(t)
	resolver := New(httpfactory.New(httpfactory.DefaultConfig()), srv.URL, "test-key", store, 100, 10)

	equities := []domain.RawEquity{rawEquity(t, "FOO"), rawEquity(t, "BAR")}
	triplets, err := resolver.Resolve(context.Background(), equities)
	require.NoError(t, err)
	require.Len(t, triplets, 2)
	assert.False(t, triplets[0].Resolved())
	assert.False(t, triplets[1].Resolved())
}

func TestResolveIsOrderPreserving(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"query_number":1,"name":"BAR","ticker":"BAR","figi":"BBG000000009"}]}`))
	}))
	defer srv.Close()

	store := newStore(t)
	resolver := New(httpfactory.New(httpfactory.DefaultConfig()), srv.URL, "test-key", store, 100, 10)

	equities := []domain.RawEquity{rawEquity(t, "FOO"), rawEquity(t, "BAR")}
	triplets, err := resolver.Resolve(context.Background(), equities)
	require.NoError(t, err)
	require.Len(t, triplets, 2)
	assert.False(t, triplets[0].Resolved())
	assert.True(t, triplets[1].Resolved())
}

func TestResolveCachesFullInput(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"query_number":0,"name":"FOO","ticker":"FOO","figi":"BBG000000001"}]}`))
	}))
	defer srv.Close()

	store := newStore(t)
	resolver := New(httpfactory.New(httpfactory.DefaultConfig()), srv.URL, "test-key", store, 100, 10)

	equities := []domain.RawEquity{rawEquity(t, "FOO")}
	_, err := resolver.Resolve(context.Background(), equities)
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), equities)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second resolve of identical input should hit the cache")
}

func TestResolveEmptyInput(t *testing.T) {
	store := newStore(t)
	resolver := New(httpfactory.New(httpfactory.DefaultConfig()), "http://example.invalid", "test-key", store, 100, 10)
	triplets, err := resolver.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, triplets)
}
