package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/fuzzy"
)

// LookupError is the enrichment taxonomy from spec.md §4.6: all are
// recoverable at the pipeline level (the source record passes through
// unchanged).
type LookupError struct {
	Kind string // no-quotes, no-equity-data, low-fuzzy-score, empty-summary
	Msg  string
}

func (e *LookupError) Error() string { return fmt.Sprintf("enrich: %s: %s", e.Kind, e.Msg) }

func newLookupError(kind, msg string) *LookupError { return &LookupError{Kind: kind, Msg: msg} }

type quote struct {
	Symbol    string `json:"symbol"`
	LongName  string `json:"longname"`
	ShortName string `json:"shortname"`
	QuoteType string `json:"quoteType"`
}

type searchResponse struct {
	Quotes []quote `json:"quotes"`
}

// Lookup resolves eq against the vendor: cache-through by eq.Symbol, then
// an ordered attempt list (ISIN, CUSIP, fuzzy name/symbol), returning a
// flattened module map on success. When every attempt fails it returns an
// empty-summary LookupError whose message carries the last attempt's error.
func (s *Session) Lookup(ctx context.Context, eq domain.RawEquity) (map[string]any, error) {
	if raw, ok, err := s.Store.LoadCache(cacheKeyFor(eq.Symbol)); err == nil && ok {
		var cached map[string]any
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	attempts := s.buildAttempts(eq)

	var lastErr error
	for _, attempt := range attempts {
		candidate, err := s.search(ctx, attempt, eq)
		if err != nil {
			lastErr = err
			continue
		}

		summary, err := s.fetchSummary(ctx, candidate.Symbol)
		if err != nil || len(summary) == 0 {
			lastErr = newLookupError("empty-summary", candidate.Symbol)
			continue
		}

		if payload, err := json.Marshal(summary); err == nil {
			_ = s.Store.SaveCache(cacheKeyFor(eq.Symbol), payload)
		}
		return summary, nil
	}

	msg := eq.Symbol
	if lastErr != nil {
		msg += ": " + lastErr.Error()
	}
	return nil, newLookupError("empty-summary", msg)
}

func cacheKeyFor(symbol string) string { return "enrich:" + symbol }

type attempt struct {
	query string
	fuzzy bool
}

// buildAttempts constructs the ordered attempt list: by ISIN, by CUSIP,
// then fuzzy fallback by name/symbol — identifier attempts are skipped
// when the identifier is absent.
func (s *Session) buildAttempts(eq domain.RawEquity) []attempt {
	var attempts []attempt
	if eq.ISIN != nil {
		attempts = append(attempts, attempt{query: *eq.ISIN})
	}
	if eq.CUSIP != nil {
		attempts = append(attempts, attempt{query: *eq.CUSIP})
	}
	attempts = append(attempts, attempt{query: eq.Name, fuzzy: true})
	return attempts
}

func (s *Session) search(ctx context.Context, a attempt, eq domain.RawEquity) (quote, error) {
	resp, err := s.doAuthenticated(ctx, func(token string) (*http.Request, error) {
		q := url.Values{}
		q.Set("q", a.query)
		q.Set("token", token)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.AuthPrefix+"/search?"+q.Encode(), nil)
		return req, err
	})
	if err != nil {
		return quote{}, err
	}

	var parsed searchResponse
	if err := decodeJSON(resp, &parsed); err != nil {
		return quote{}, err
	}

	var candidates []quote
	for _, q := range parsed.Quotes {
		if q.QuoteType != "EQUITY" {
			continue
		}
		if q.Symbol == "" {
			continue
		}
		nameField := q.LongName
		if a.fuzzy {
			nameField = firstNonEmpty(q.LongName, q.ShortName)
		}
		if nameField == "" {
			continue
		}
		candidates = append(candidates, q)
	}

	if len(candidates) == 0 {
		return quote{}, newLookupError("no-quotes", a.query)
	}
	if len(candidates) == 1 {
		return validateCandidate(candidates[0])
	}

	return s.pickBest(candidates, eq)
}

func validateCandidate(q quote) (quote, error) {
	if q.LongName == "" && q.ShortName == "" {
		return quote{}, newLookupError("no-equity-data", q.Symbol)
	}
	return q, nil
}

// pickBest implements spec.md §4.6 step 3's tie-break: candidates sharing
// the chosen name field use the first; otherwise the combined fuzzy score
// (symbol ratio + token-sorted name ratio) picks the winner, rejecting
// scores below FuzzyMinScore.
func (s *Session) pickBest(candidates []quote, eq domain.RawEquity) (quote, error) {
	nameOf := func(q quote) string { return firstNonEmpty(q.LongName, q.ShortName) }

	first := nameOf(candidates[0])
	sameName := true
	for _, c := range candidates[1:] {
		if nameOf(c) != first {
			sameName = false
			break
		}
	}
	if sameName {
		return validateCandidate(candidates[0])
	}

	bestIdx := -1
	bestScore := -1
	for i, c := range candidates {
		score := fuzzy.Ratio(c.Symbol, eq.Symbol) + fuzzy.TokenSortRatio(nameOf(c), eq.Name)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestScore < s.FuzzyMinScore {
		return quote{}, newLookupError("low-fuzzy-score", fmt.Sprintf("%d", bestScore))
	}
	return validateCandidate(candidates[bestIdx])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
