// Package lse implements the LSE-style authoritative feed (spec.md §4.3,
// Feed B): a nested-JSON POST body whose response carries both the current
// page and a totalPages count, discovered from page 0 and then fanned out
// concurrently. Grounded the same way as internal/feeds/euronext, sharing
// its Source/Semaphore/cache-through plumbing.
package lse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/breaker"
	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/config"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

const cacheName = "lse_snapshot"

// Feed streams LSE-style listings.
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
		Breaker: breaker.New("lse"),
		Policy:  policy,
	}
}

// lseItem is a single listing row in the LSE wire shape.
type lseItem struct {
	ISIN        string `json:"isin"`
	Name        string `json:"issuername"`
	Symbol      string `json:"tidm"`
	Currency    string `json:"currency"`
	LastPrice   string `json:"lastprice"`
	MarketCap   string `json:"marketcap"`
	MIC         string `json:"mic"`
}

type lsePage struct {
	Items      []lseItem `json:"items"`
	TotalPages int       `json:"totalPages"`

	// discoveryFailed is set when the discovery page (page 0) itself
	// returned a 4xx, so the caller can short-circuit straight to zero
	// results instead of probing page 1.
	discoveryFailed bool
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

	first, err := f.fetchPage(ctx, 0)
	if err != nil {
		wrapped := apperr.NewFeedFatalError("lse", err)
		if handled := f.Policy.Handle(wrapped); handled != nil {
			errc <- handled
			return
		}
		log.Error().Err(err).Str("feed", "lse").Msg("discovery page failed, isolated")
		return
	}

	if first.discoveryFailed {
		// Discovery page 4xx'd: nothing to crawl, and no point probing
		// page 1 since the endpoint has already refused us.
		feeds.SaveSnapshot(f.Store, cacheName, nil)
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
	addItems := func(items []lseItem) bool {
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
	addItems(first.Items)

	if first.TotalPages > 1 {
		var wg sync.WaitGroup
		for page := 1; page < first.TotalPages; page++ {
			page := page
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := f.Sem.Acquire(ctx); err != nil {
					return
				}
				defer f.Sem.Release()
				p, err := f.fetchPage(ctx, page)
				if err != nil {
					log.Warn().Err(err).Str("feed", "lse").Msg("page fetch failed, skipped")
					return
				}
				addItems(p.Items)
			}()
		}
		wg.Wait()
	} else if first.TotalPages == 0 {
		// totalPages unknown: fall back to a serial crawl until an empty page.
		for page := 1; ; page++ {
			p, err := f.fetchPage(ctx, page)
			if err != nil || len(p.Items) == 0 {
				break
			}
			if !addItems(p.Items) {
				break
			}
		}
	}

	feeds.SaveSnapshot(f.Store, cacheName, snapshot)
}

func buildRecord(item lseItem) (domain.FeedRecord, bool) {
	payload, err := json.Marshal(item)
	if err != nil {
		return domain.FeedRecord{}, false
	}
	return domain.FeedRecord{FeedTag: domain.FeedLSE, Payload: payload}, true
}

func (f *Feed) fetchPage(ctx context.Context, page int) (lsePage, error) {
	body := map[string]any{
		"page": page,
		"parameters": map[string]any{
			"pagesize": 100,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return lsePage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return lsePage{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	respI, err := f.Breaker.Execute(func() (any, error) {
		resp, err := f.Client.Do(ctx, req, httpfactory.WithHeader("Referer", "https://www.londonstockexchange.com/"))
		if err != nil {
			return nil, err
		}
		if page == 0 && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			resp.Body.Close()
			return &lsePage{discoveryFailed: true}, nil
		}
		return resp, nil
	})
	if err != nil {
		return lsePage{}, fmt.Errorf("lse page %d: %w", page, err)
	}

	if p, ok := respI.(*lsePage); ok {
		return *p, nil
	}
	resp := respI.(*http.Response)
	defer resp.Body.Close()

	var wrapper [1]lsePage
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return lsePage{}, fmt.Errorf("lse page %d: decode: %w", page, err)
	}
	return wrapper[0], nil
}

// Normalise converts a cached lseItem payload into a RawEquity, applying
// the GBX→GBP/100 mapping from spec.md §4.9.
func Normalise(payload []byte) (domain.RawEquity, error) {
	var item lseItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return domain.RawEquity{}, apperr.NewDataError("lse_item", string(payload), err.Error())
	}

	in := domain.RawEquityInput{
		Name:   item.Name,
		Symbol: item.Symbol,
		ISIN:   item.ISIN,
	}
	if item.MIC != "" {
		in.MICs = []string{item.MIC}
	}

	currency := strings.ToUpper(item.Currency)
	price := item.LastPrice

	if currency == "GBX" {
		currency = "GBP"
		if price != "" {
			d, err := decimal.NewFromString(price)
			if err == nil {
				adjusted := d.DivRound(decimal.NewFromInt(100), 4).String()
				price = adjusted
			}
		}
	}
	if currency != "" {
		in.Currency = currency
	}
	if price != "" {
		in.LastPrice = &price
	}
	if item.MarketCap != "" {
		in.MarketCap = &item.MarketCap
	}

	eq, err := domain.NewRawEquity(in)
	if err != nil {
		return domain.RawEquity{}, apperr.NewDataError("lse_item", item.Name, err.Error())
	}
	return eq, nil
}
