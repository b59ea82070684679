// Package xetra implements the Xetra-style authoritative feed (spec.md
// §4.3, Feed C): an offset/limit JSON POST body whose first page's
// recordsTotal drives a fan-out of concurrent page fetches. Grounded the
// same way as internal/feeds/euronext and internal/feeds/lse.
package xetra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/breaker"
	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/config"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

const (
	cacheName = "xetra_snapshot"
	pageLimit = 100
)

const (
	defaultMIC      = "XETR"
	defaultCurrency = "EUR"
)

// Feed streams Xetra-style listings.
type Feed struct {
	Client  *httpfactory.Client
	BaseURL string
	Store   *cachestore.Store
	Sem     feeds.Semaphore
	Breaker *gobreaker.CircuitBreaker
	Policy  config.FailurePolicy
}

// New builds a Feed.
func New(client *httpfactory.Client, baseURL string, store *cachestore.Store, concurrency int, policy config.FailurePolicy) *Feed {
	return &Feed{
		Client:  client,
		BaseURL: baseURL,
		Store:   store,
		Sem:     feeds.NewSemaphore(concurrency),
		Breaker: breaker.New("xetra"),
		Policy:  policy,
	}
}

type xetraOverview struct {
	LastPrice float64 `json:"lastPrice"`
}

type xetraKeyData struct {
	MarketCapitalisation float64 `json:"marketCapitalisation"`
}

type xetraItem struct {
	ISIN     string        `json:"isin"`
	Name     string        `json:"name"`
	Mnemonic string        `json:"mnemonic"`
	Overview xetraOverview `json:"overview"`
	KeyData  xetraKeyData  `json:"keyData"`
}

type xetraResponse struct {
	RecordsTotal int         `json:"recordsTotal"`
	Data         []xetraItem `json:"data"`
}

// StreamRecords implements feeds.Source.
func (f *Feed) StreamRecords(ctx context.Context) (<-chan domain.FeedRecord, <-chan error) {
	out := make(chan domain.FeedRecord, 256)
	errc := make(chan error, 1)

	if cached, ok := feeds.CacheThrough(f.Store, cacheName); ok {
		go func() {
			defer close(out)
			defer close(errc)
			for _, r := range cached {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, errc
	}

	go f.crawl(ctx, out, errc)
	return out, errc
}

func (f *Feed) crawl(ctx context.Context, out chan<- domain.FeedRecord, errc chan<- error) {
	defer close(out)
	defer close(errc)

	first, err := f.fetchOffset(ctx, 0)
	if err != nil {
		wrapped := apperr.NewFeedFatalError("xetra", err)
		if handled := f.Policy.Handle(wrapped); handled != nil {
			errc <- handled
			return
		}
		log.Error().Err(err).Str("feed", "xetra").Msg("discovery page failed, isolated")
		return
	}

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var snapshot []domain.FeedRecord
	stopped := false

	emit := func(rec domain.FeedRecord) bool {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return false
		}
		snapshot = append(snapshot, rec)
		mu.Unlock()

		select {
		case out <- rec:
			return true
		case <-ctx.Done():
			mu.Lock()
			stopped = true
			mu.Unlock()
			return false
		}
	}
	addItems := func(items []xetraItem) bool {
		for _, item := range items {
			if item.ISIN != "" {
				mu.Lock()
				if _, dup := seen[item.ISIN]; dup {
					mu.Unlock()
					continue
				}
				seen[item.ISIN] = struct{}{}
				mu.Unlock()
			}
			rec, ok := buildRecord(item)
			if !ok {
				continue
			}
			if !emit(rec) {
				return false
			}
		}
		return true
	}
	addItems(first.Data)

	offsets := remainingOffsets(first.RecordsTotal, pageLimit)
	if len(offsets) > 0 {
		var wg sync.WaitGroup
		for _, offset := range offsets {
			offset := offset
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := f.Sem.Acquire(ctx); err != nil {
					return
				}
				defer f.Sem.Release()
				p, err := f.fetchOffset(ctx, offset)
				if err != nil {
					log.Warn().Err(err).Str("feed", "xetra").Msg("page fetch failed, skipped")
					return
				}
				addItems(p.Data)
			}()
		}
		wg.Wait()
	}

	feeds.SaveSnapshot(f.Store, cacheName, snapshot)
}

// remainingOffsets returns every page offset after the first, given the
// total record count and page size.
func remainingOffsets(total, limit int) []int {
	if total <= limit {
		return nil
	}
	var offsets []int
	for offset := limit; offset < total; offset += limit {
		offsets = append(offsets, offset)
	}
	return offsets
}

func buildRecord(item xetraItem) (domain.FeedRecord, bool) {
	payload, err := json.Marshal(item)
	if err != nil {
		return domain.FeedRecord{}, false
	}
	return domain.FeedRecord{FeedTag: domain.FeedXetra, Payload: payload}, true
}

func (f *Feed) fetchOffset(ctx context.Context, offset int) (xetraResponse, error) {
	body := map[string]any{
		"offset":    offset,
		"limit":     pageLimit,
		"sorting":   "TURNOVER",
		"sortOrder": "DESC",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return xetraResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return xetraResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	respI, err := f.Breaker.Execute(func() (any, error) {
		return f.Client.Do(ctx, req)
	})
	if err != nil {
		return xetraResponse{}, fmt.Errorf("xetra offset %d: %w", offset, err)
	}
	resp := respI.(*http.Response)
	defer resp.Body.Close()

	var parsed xetraResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return xetraResponse{}, fmt.Errorf("xetra offset %d: decode: %w", offset, err)
	}
	return parsed, nil
}

// Normalise converts a cached xetraItem payload into a RawEquity, mapping
// overview.lastPrice/keyData.marketCapitalisation and defaulting MIC/
// currency to XETR/EUR per spec.md §4.3.
func Normalise(payload []byte) (domain.RawEquity, error) {
	var item xetraItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return domain.RawEquity{}, apperr.NewDataError("xetra_item", string(payload), err.Error())
	}

	in := domain.RawEquityInput{
		Name:     item.Name,
		Symbol:   item.Mnemonic,
		ISIN:     item.ISIN,
		MICs:     []string{defaultMIC},
		Currency: defaultCurrency,
	}

	if item.Overview.LastPrice != 0 {
		s := strconv.FormatFloat(item.Overview.LastPrice, 'f', -1, 64)
		in.LastPrice = &s
	}
	if item.KeyData.MarketCapitalisation != 0 {
		s := strconv.FormatFloat(item.KeyData.MarketCapitalisation, 'f', -1, 64)
		in.MarketCap = &s
	}

	eq, err := domain.NewRawEquity(in)
	if err != nil {
		return domain.RawEquity{}, apperr.NewDataError("xetra_item", item.Name, err.Error())
	}
	return eq, nil
}
