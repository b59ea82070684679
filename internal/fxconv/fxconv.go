// Package fxconv implements the FX Converter (spec.md §4.5): loads a
// USD-base rate table from an external vendor, memoises it in the Cache
// Store, and exposes a pure conversion function over RawEquity. Grounded
// on the teacher's cache-through call shape (internal/feeds) and its
// fatal-vs-data error taxonomy (internal/apperr).
package fxconv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

const cacheName = "fx_rates"

// Converter holds an immutable rate table (foreign units per 1 USD) for
// one run, loaded once and shared by every call to Convert.
type Converter struct {
	rates map[string]decimal.Decimal
}

type vendorResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Load fetches (or replays from cache) the rate table and returns a
// Converter over it. A non-2xx response or result != "success" is fatal,
// per spec.md §4.5.
func Load(ctx context.Context, client *httpfactory.Client, baseURL, apiKey string, store *cachestore.Store, ttlMinutes int) (*Converter, error) {
	if raw, ok, err := store.LoadCache(cacheName); err == nil && ok {
		rates, decErr := decodeRates(raw)
		if decErr == nil {
			return &Converter{rates: rates}, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, apperr.NewStorageError("fx_request", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, apperr.NewFeedFatalError("fx", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.NewFeedFatalError("fx", fmt.Errorf("http %d", resp.StatusCode))
	}

	var parsed vendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.NewFeedFatalError("fx", fmt.Errorf("decode: %w", err))
	}
	if parsed.Result != "success" {
		return nil, apperr.NewFeedFatalError("fx", fmt.Errorf("vendor result: %s", parsed.Result))
	}

	rates := make(map[string]decimal.Decimal, len(parsed.Rates))
	for k, v := range parsed.Rates {
		rates[k] = decimal.NewFromFloat(v)
	}

	if payload, err := json.Marshal(parsed.Rates); err == nil {
		_ = store.SaveCache(cacheName, payload)
	}

	return &Converter{rates: rates}, nil
}

func decodeRates(raw []byte) (map[string]decimal.Decimal, error) {
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = decimal.NewFromFloat(v)
	}
	return out, nil
}

// Convert returns r unchanged if last_price or currency is absent, or
// currency is already "USD" (spec.md §4.5, scenario S4). Otherwise it
// converts last_price to USD using the loaded rate table, failing with a
// data error if the currency is unknown and fatally if the rate is zero.
func (c *Converter) Convert(r domain.RawEquity) (domain.RawEquity, error) {
	if r.LastPrice == nil || r.Currency == nil || *r.Currency == "USD" {
		return r, nil
	}

	rate, ok := c.rates[*r.Currency]
	if !ok {
		return domain.RawEquity{}, apperr.NewDataError("currency", *r.Currency, "unknown currency in fx rate table")
	}
	if rate.IsZero() {
		return domain.RawEquity{}, apperr.NewFeedFatalError("fx", fmt.Errorf("rate for %s is zero", *r.Currency))
	}

	usd := r.LastPrice.DivRound(rate, 2)
	usdCurrency := "USD"

	out := r
	out.LastPrice = &usd
	out.Currency = &usdCurrency
	return out, nil
}
