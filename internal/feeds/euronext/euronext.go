// Package euronext implements the Euronext-style authoritative feed
// (spec.md §4.3, Feed A): fan out concurrently over a static venue→MIC
// map, paginate a DataTables-style POST endpoint per venue, and parse
// HTML-fragment rows. Grounded on the teacher's per-exchange adapter
// layout (internal/data/exchanges/{kraken,binance}), generalised from a
// WebSocket feed to a paginated-HTTP listing feed, and on
// internal/infrastructure/httpclient/pool.go's semaphore-gated Do for the
// per-venue concurrency cap.
package euronext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
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
	cacheName = "euronext_snapshot"
	pageSize  = 100
)

// Feed streams Euronext-style listings.
type Feed struct {
	Client   *httpfactory.Client
	BaseURL  string
	Venues   config.VenueMap
	Store    *cachestore.Store
	Sem      feeds.Semaphore
	Breaker  *gobreaker.CircuitBreaker
	Policy   config.FailurePolicy
}

// New builds a Feed with a fresh circuit breaker and a concurrency
// semaphore sized by concurrency.
func New(client *httpfactory.Client, baseURL string, venues config.VenueMap, store *cachestore.Store, concurrency int, policy config.FailurePolicy) *Feed {
	return &Feed{
		Client:  client,
		BaseURL: baseURL,
		Venues:  venues,
		Store:   store,
		Sem:     feeds.NewSemaphore(concurrency),
		Breaker: breaker.New("euronext"),
		Policy:  policy,
	}
}

type dataTablesResponse struct {
	Draw           int        `json:"draw"`
	ITotalRecords  int        `json:"iTotalRecords"`
	AaData         [][]string `json:"aaData"`
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

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var snapshot []domain.FeedRecord
	stopped := false

	// emit pushes a parsed record onto out as soon as it's available,
	// per spec.md §4.3's shared-queue streaming requirement; the dedup
	// set and snapshot accumulator are shared across venue goroutines so
	// both stay correct under concurrent emission.
	emit := func(rec domain.FeedRecord) bool {
		key := dedupeKey(rec)

		mu.Lock()
		if stopped {
			mu.Unlock()
			return false
		}
		if key != "" {
			if _, dup := seen[key]; dup {
				mu.Unlock()
				return true
			}
			seen[key] = struct{}{}
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

	var wg sync.WaitGroup
	errCh := make(chan error, len(f.Venues))
	for venueName, mic := range f.Venues {
		venueName, mic := venueName, mic
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Sem.Acquire(ctx); err != nil {
				errCh <- err
				return
			}
			defer f.Sem.Release()

			if err := f.crawlVenue(ctx, venueName, mic, emit); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		wrapped := apperr.NewFeedFatalError("euronext", err)
		if handled := f.Policy.Handle(wrapped); handled != nil {
			errc <- handled
			return
		}
		log.Error().Err(err).Str("feed", "euronext").Msg("venue crawl failed, isolated")
	}

	feeds.SaveSnapshot(f.Store, cacheName, snapshot)
}

func dedupeKey(rec domain.FeedRecord) string {
	var row euronextRow
	if err := json.Unmarshal(rec.Payload, &row); err != nil {
		return ""
	}
	return row.ISIN
}

// euronextRow is the cached, already-parsed shape of a single Euronext
// listing row, stored as a FeedRecord payload for the parse stage to
// decode without re-touching HTML.
type euronextRow struct {
	NameHTML string `json:"name_html"`
	Symbol   string `json:"symbol"`
	ISIN     string `json:"isin"`
	CcyPrice string `json:"ccy_price_html"`
	MICsCSV  string `json:"mics_csv"`
}

func (f *Feed) crawlVenue(ctx context.Context, venueName, mic string, emit func(domain.FeedRecord) bool) error {
	start := 0

	for {
		body := map[string]any{
			"draw":            1,
			"start":           start,
			"length":          pageSize,
			"iDisplayLength":  pageSize,
			"iDisplayStart":   start,
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		respI, err := f.Breaker.Execute(func() (any, error) {
			return f.Client.Do(ctx, req, httpfactory.WithHeader("X-Venue", venueName))
		})
		if err != nil {
			return fmt.Errorf("euronext venue %s: %w", venueName, err)
		}
		resp := respI.(*http.Response)

		var parsed dataTablesResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("euronext venue %s: decode: %w", venueName, err)
		}

		for _, row := range parsed.AaData {
			rec, ok := parseRow(row, mic)
			if !ok {
				continue
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if !emit(domain.FeedRecord{FeedTag: domain.FeedEuronext, Payload: payload}) {
				return nil
			}
		}

		start += pageSize
		if start >= parsed.ITotalRecords || len(parsed.AaData) == 0 {
			break
		}
	}

	return nil
}

var anchorRe = regexp.MustCompile(`(?s)<a[^>]*>(.*?)</a>`)

func parseRow(row []string, mic string) (euronextRow, bool) {
	if len(row) < 4 {
		return euronextRow{}, false
	}
	return euronextRow{
		NameHTML: row[0],
		Symbol:   strings.TrimSpace(row[1]),
		ISIN:     strings.TrimSpace(row[2]),
		CcyPrice: row[3],
		MICsCSV:  joinMIC(row, mic),
	}, true
}

func joinMIC(row []string, fallback string) string {
	if len(row) >= 5 && strings.TrimSpace(row[4]) != "" {
		return row[4]
	}
	return fallback
}

// ExtractName pulls the anchor-tag text out of a name cell's HTML fragment,
// falling back to the raw string if there is no anchor.
func ExtractName(html string) string {
	m := anchorRe.FindStringSubmatch(html)
	if m == nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(stripTags(m[1]))
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

var ccyPriceRe = regexp.MustCompile(`(?s)^\s*([A-Za-z]{3})\s*<span[^>]*>([^<]+)</span>`)

// ExtractCcyPrice parses a "CCY <span>price</span>" fragment into its
// currency and price text.
func ExtractCcyPrice(html string) (currency, price string, ok bool) {
	m := ccyPriceRe.FindStringSubmatch(html)
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), strings.TrimSpace(m[2]), true
}

// SplitMICs splits a comma-separated MIC cell into a deduplicated,
// first-seen-order list.
func SplitMICs(csv string) []string {
	parts := strings.Split(csv, ",")
	seen := make(map[string]struct{})
	var out []string
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Normalise converts the cached euronextRow payload into a RawEquity,
// applying the HTML-fragment parsing rules (spec.md §4.9). This is the
// parse-stage normaliser registered under domain.FeedEuronext.
func Normalise(payload []byte) (domain.RawEquity, error) {
	var row euronextRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return domain.RawEquity{}, apperr.NewDataError("euronext_row", string(payload), err.Error())
	}

	name := ExtractName(row.NameHTML)
	in := domain.RawEquityInput{
		Name:   name,
		Symbol: row.Symbol,
		ISIN:   row.ISIN,
		MICs:   SplitMICs(row.MICsCSV),
	}

	if ccy, price, ok := ExtractCcyPrice(row.CcyPrice); ok {
		in.Currency = ccy
		in.LastPrice = &price
	}

	eq, err := domain.NewRawEquity(in)
	if err != nil {
		return domain.RawEquity{}, apperr.NewDataError("euronext_row", name, err.Error())
	}
	return eq, nil
}
