// Package feeds defines the shared Source contract implemented by each
// authoritative exchange adapter (euronext, lse, xetra) and the cache-through
// snapshot helper they all share. Layout mirrors the teacher's per-exchange
// adapter packages (internal/data/exchanges/{kraken,binance}), generalised
// from WebSocket market-data streams to paginated-HTTP listing fetches.
package feeds

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/domain"
)

// Source streams raw feed payloads for one authoritative exchange. A nil
// error on the error channel is never sent; the channel is closed (with
// no value) on clean completion. On fatal upstream failure the feed sends
// exactly one error and closes both channels.
type Source interface {
	StreamRecords(ctx context.Context) (<-chan domain.FeedRecord, <-chan error)
}

// CacheThrough attempts to load a cached snapshot for cacheName. If
// present, the snapshot's records are returned as a slice and ok is true;
// callers replay them onto their own output channel and skip their crawl.
func CacheThrough(store *cachestore.Store, cacheName string) (records []domain.FeedRecord, ok bool) {
	raw, present, err := store.LoadCache(cacheName)
	if err != nil {
		log.Warn().Err(err).Str("cache_name", cacheName).Msg("feed snapshot cache read failed")
		return nil, false
	}
	if !present {
		return nil, false
	}
	var snap []snapshotRecord
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Err(err).Str("cache_name", cacheName).Msg("feed snapshot cache corrupt")
		return nil, false
	}
	out := make([]domain.FeedRecord, 0, len(snap))
	for _, s := range snap {
		out = append(out, domain.FeedRecord{FeedTag: s.FeedTag, Payload: s.Payload})
	}
	return out, true
}

// SaveSnapshot persists the full set of records collected this run under
// cacheName, so the next run's CacheThrough can short-circuit the crawl.
func SaveSnapshot(store *cachestore.Store, cacheName string, records []domain.FeedRecord) {
	snap := make([]snapshotRecord, 0, len(records))
	for _, r := range records {
		snap = append(snap, snapshotRecord{FeedTag: r.FeedTag, Payload: r.Payload})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Warn().Err(err).Str("cache_name", cacheName).Msg("feed snapshot marshal failed")
		return
	}
	if err := store.SaveCache(cacheName, data); err != nil {
		log.Warn().Err(err).Str("cache_name", cacheName).Msg("feed snapshot save failed")
	}
}

type snapshotRecord struct {
	FeedTag domain.FeedTag `json:"feed_tag"`
	Payload []byte         `json:"payload"`
}

// Semaphore is a counting semaphore built on a buffered channel, the
// pattern spec.md §5 calls for in place of the teacher's adaptive
// ConcurrencyManager (internal/infrastructure/async/concurrency.go) — that
// file's rate-limiter/worker-pool/adaptive-latency machinery is overkill
// for a fixed concurrency cap, so only the bounded-slots idea is kept.
type Semaphore chan struct{}

// NewSemaphore builds a Semaphore with n slots.
func NewSemaphore(n int) Semaphore {
	return make(Semaphore, n)
}

// Acquire blocks until a slot is free or ctx is done.
func (s Semaphore) Acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (s Semaphore) Release() { <-s }
