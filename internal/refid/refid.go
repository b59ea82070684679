// Package refid implements the FIGI batch resolver (spec.md §4.4): an
// ordered, cache-through mapping from a sequence of RawEquity to
// (name?, symbol?, figi?) triplets, preserving input order. Grounded on
// internal/infrastructure/httpclient/pool.go's semaphore-gated Do for the
// in-flight batch cap, and on the teacher's cache-through call shape used
// throughout internal/feeds.
package refid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

const cacheName = "figi_batches"

// Triplet is the resolver's per-input output: a resolved identity, or all
// three fields empty to mean "no identity mapped".
type Triplet struct {
	Name   string
	Symbol string
	FIGI   string
}

// Resolved reports whether the triplet carries a usable FIGI.
func (t Triplet) Resolved() bool { return t.FIGI != "" }

// Resolver batches RawEquity through the mapping vendor.
type Resolver struct {
	Client      *httpfactory.Client
	BaseURL     string
	APIKey      string
	Store       *cachestore.Store
	BatchSize   int
	MaxInFlight int
}

// New builds a Resolver.
func New(client *httpfactory.Client, baseURL, apiKey string, store *cachestore.Store, batchSize, maxInFlight int) *Resolver {
	return &Resolver{Client: client, BaseURL: baseURL, APIKey: apiKey, Store: store, BatchSize: batchSize, MaxInFlight: maxInFlight}
}

// vendorQuery is a single query record sent to the mapping vendor.
type vendorQuery struct {
	IDType string `json:"idType"`
	IDValue string `json:"idValue"`
	SecurityType string `json:"securityType"`
}

// vendorResponse is the vendor's response envelope. Each record is decoded
// loosely (map[string]any) rather than into a strict struct: per spec.md
// §4.4 point 6, a non-string field is discarded on its own, and a single
// type-mismatched field in one record must not block decoding the other
// records the batch call returns, grounded on
// _examples/original_source/.../openfigi.py's per-field isinstance check.
type vendorResponse struct {
	Data []map[string]any `json:"data"`
}

// Resolve maps equities to triplets, preserving input order. The full
// input is cache-through keyed by a stable hash of its identifying
// fields.
func (r *Resolver) Resolve(ctx context.Context, equities []domain.RawEquity) ([]Triplet, error) {
	if len(equities) == 0 {
		return nil, nil
	}

	key := inputCacheKey(equities)
	if raw, ok, err := r.Store.LoadCacheEntry(cacheName, key); err == nil && ok {
		var cached []Triplet
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) == len(equities) {
			return cached, nil
		}
	}

	out := make([]Triplet, len(equities))

	type batchJob struct {
		start int
		items []domain.RawEquity
	}
	var batches []batchJob
	for start := 0; start < len(equities); start += r.BatchSize {
		end := start + r.BatchSize
		if end > len(equities) {
			end = len(equities)
		}
		batches = append(batches, batchJob{start: start, items: equities[start:end]})
	}

	sem := feeds.NewSemaphore(r.MaxInFlight)
	type batchResult struct {
		start  int
		result []Triplet
	}
	results := make(chan batchResult, len(batches))

	for _, b := range batches {
		b := b
		go func() {
			if err := sem.Acquire(ctx); err != nil {
				results <- batchResult{start: b.start, result: make([]Triplet, len(b.items))}
				return
			}
			defer sem.Release()

			triplets, err := r.resolveBatch(ctx, b.items)
			if err != nil {
				log.Warn().Err(err).Int("batch_start", b.start).Msg("figi batch failed, degrading to all-null")
				triplets = make([]Triplet, len(b.items))
			}
			results <- batchResult{start: b.start, result: triplets}
		}()
	}

	for range batches {
		br := <-results
		copy(out[br.start:br.start+len(br.result)], br.result)
	}

	if payload, err := json.Marshal(out); err == nil {
		if err := r.Store.SaveCacheEntry(cacheName, key, payload); err != nil {
			log.Warn().Err(err).Msg("figi batch result cache save failed")
		}
	}

	return out, nil
}

func (r *Resolver) resolveBatch(ctx context.Context, items []domain.RawEquity) ([]Triplet, error) {
	queries := make([]vendorQuery, len(items))
	for i, eq := range items {
		q := vendorQuery{SecurityType: "Equity"}
		switch {
		case eq.ISIN != nil:
			q.IDType, q.IDValue = "ID_ISIN", *eq.ISIN
		case eq.CUSIP != nil:
			q.IDType, q.IDValue = "ID_CUSIP", *eq.CUSIP
		default:
			q.IDType, q.IDValue = "TICKER", eq.Symbol
		}
		queries[i] = q
	}

	payload, err := json.Marshal(map[string]any{"data": queries})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", r.APIKey)

	resp, err := r.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refid: http %d", resp.StatusCode)
	}

	var parsed vendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("refid: decode: %w", err)
	}

	out := make([]Triplet, len(items))
	seen := make([]bool, len(items))
	for _, rec := range parsed.Data {
		qn, ok := queryNumberOf(rec)
		if !ok || qn < 0 || qn >= len(items) {
			continue
		}
		if seen[qn] {
			continue
		}
		figi := stringOf(rec["figi"])
		if !isValidFIGI(figi) {
			continue
		}
		seen[qn] = true

		name := stringOf(rec["name"])
		if name == "" {
			name = stringOf(rec["securityName"])
		}
		out[qn] = Triplet{Name: name, Symbol: stringOf(rec["ticker"]), FIGI: figi}
	}

	return out, nil
}

// stringOf returns v as a string, or "" if v is not a string. Non-string
// values are discarded per spec.md §4.4 point 6, rather than aborting the
// whole record.
func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// queryNumberOf extracts the record's query_number, tolerating the
// float64 shape encoding/json produces for a loosely-decoded JSON number.
func queryNumberOf(rec map[string]any) (int, bool) {
	switch n := rec["query_number"].(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func isValidFIGI(s string) bool {
	if len(s) != 12 {
		return false
	}
	for _, c := range s {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// inputCacheKey hashes the identifying fields of the input sequence into a
// stable cache key, per spec.md §4.4's "cache-through on the full input as
// a single opaque key".
func inputCacheKey(equities []domain.RawEquity) string {
	h := sha256.New()
	for i, eq := range equities {
		h.Write([]byte(strconv.Itoa(i)))
		h.Write([]byte{0})
		if eq.ISIN != nil {
			h.Write([]byte(*eq.ISIN))
		}
		h.Write([]byte{0})
		if eq.CUSIP != nil {
			h.Write([]byte(*eq.CUSIP))
		}
		h.Write([]byte{0})
		h.Write([]byte(eq.Symbol))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
