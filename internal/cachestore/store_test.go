package cachestore

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityagg/equityagg/internal/domain"
)

func openTestStore(t *testing.T, ttlMinutes int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data_store.db"), ttlMinutes)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsNegativeTTL(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), -1)
	assert.Error(t, err)
}

func TestSaveLoadCacheRoundTrip(t *testing.T) {
	s := openTestStore(t, 0)

	err := s.SaveCache("fx_rates", []byte(`{"USD":1}`))
	require.NoError(t, err)

	v, ok, err := s.LoadCache("fx_rates")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"USD":1}`, string(v))
}

func TestLoadCacheMissingReturnsAbsent(t *testing.T) {
	s := openTestStore(t, 0)
	_, ok, err := s.LoadCache("does_not_exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheEntryExpiresPastTTL(t *testing.T) {
	s := openTestStore(t, 1)

	require.NoError(t, s.SaveCacheEntry("figi_batch", "BBG1", []byte("payload")))
	_, err := s.db.Exec(`UPDATE object_cache SET created_at = ? WHERE cache_name = ? AND key = ?`,
		time.Now().Add(-2*time.Minute).Unix(), "figi_batch", "BBG1")
	require.NoError(t, err)

	_, ok, err := s.LoadCacheEntry("figi_batch", "BBG1")
	require.NoError(t, err)
	assert.False(t, ok, "entry older than ttl should be evicted and reported absent")
}

func TestCacheEntryWithinTTLIsHonoured(t *testing.T) {
	s := openTestStore(t, 60)
	require.NoError(t, s.SaveCacheEntry("figi_batch", "BBG1", []byte("payload")))

	v, ok, err := s.LoadCacheEntry("figi_batch", "BBG1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(v))
}

func sampleEquity(t *testing.T, figi string) domain.CanonicalEquity {
	t.Helper()
	r, err := domain.NewRawEquity(domain.RawEquityInput{
		Name:           "FOO INC",
		Symbol:         "FOO",
		ShareClassFIGI: figi,
	})
	require.NoError(t, err)
	eq, err := domain.NewCanonicalEquity(r)
	require.NoError(t, err)
	return eq
}

func TestSaveLoadCanonicalEquities(t *testing.T) {
	s := openTestStore(t, 0)

	a := sampleEquity(t, "BBG000B9XRY4")
	b := sampleEquity(t, "BBG000BKQV61")
	require.NoError(t, s.SaveCanonicalEquities([]domain.CanonicalEquity{a, b}))

	all, err := s.LoadCanonicalEquities()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, ok, err := s.LoadCanonicalEquity("BBG000B9XRY4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Identity.Name, got.Identity.Name)

	_, ok, err = s.LoadCanonicalEquity("BBG0000000XX")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveCanonicalEquitiesUpserts(t *testing.T) {
	s := openTestStore(t, 0)

	a := sampleEquity(t, "BBG000B9XRY4")
	require.NoError(t, s.SaveCanonicalEquities([]domain.CanonicalEquity{a}))

	a.Identity.Name = "FOO INC UPDATED"
	require.NoError(t, s.SaveCanonicalEquities([]domain.CanonicalEquity{a}))

	got, ok, err := s.LoadCanonicalEquity("BBG000B9XRY4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FOO INC UPDATED", got.Identity.Name)

	all, err := s.LoadCanonicalEquities()
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate rows")
}

// S6: Export ordering.
func TestExportOrdersByFIGIAscending(t *testing.T) {
	s := openTestStore(t, 0)

	b := sampleEquity(t, "BBG000BKQV61")
	a := sampleEquity(t, "BBG000B9XRY4")
	require.NoError(t, s.SaveCanonicalEquities([]domain.CanonicalEquity{b, a}))

	path := filepath.Join(t.TempDir(), "canonical_equities.jsonl.gz")
	require.NoError(t, s.Export(path))

	rebuilt := openTestStore(t, 0)
	require.NoError(t, rebuilt.RebuildFromExport(path))

	all, err := rebuilt.LoadCanonicalEquities()
	require.NoError(t, err)
	require.Len(t, all, 2)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "BBG000B9XRY4")
	assert.Contains(t, lines[1], "BBG000BKQV61")
}

func TestExportRebuildRoundTrip(t *testing.T) {
	s := openTestStore(t, 0)

	eqs := []domain.CanonicalEquity{
		sampleEquity(t, "BBG000B9XRY4"),
		sampleEquity(t, "BBG000BKQV61"),
	}
	require.NoError(t, s.SaveCanonicalEquities(eqs))

	path := filepath.Join(t.TempDir(), "canonical_equities.jsonl.gz")
	require.NoError(t, s.Export(path))

	rebuilt := openTestStore(t, 0)
	require.NoError(t, rebuilt.RebuildFromExport(path))

	got, err := rebuilt.LoadCanonicalEquities()
	require.NoError(t, err)
	require.Len(t, got, len(eqs))
	for i, want := range eqs {
		assert.Equal(t, want.FIGI(), got[i].FIGI())
	}
}

func TestRebuildFromExportReplacesExistingRows(t *testing.T) {
	s := openTestStore(t, 0)
	require.NoError(t, s.SaveCanonicalEquities([]domain.CanonicalEquity{sampleEquity(t, "BBG000B9XRY4")}))

	path := filepath.Join(t.TempDir(), "export.jsonl.gz")
	require.NoError(t, s.Export(path))

	other := openTestStore(t, 0)
	require.NoError(t, other.SaveCanonicalEquities([]domain.CanonicalEquity{sampleEquity(t, "BBG000ZZZZZZ")}))

	require.NoError(t, other.RebuildFromExport(path))

	all, err := other.LoadCanonicalEquities()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "BBG000B9XRY4", all[0].FIGI())
}
