package enrich

import (
	"context"
	"net/http"
	"net/url"
)

// summaryModules is the fixed set of modules requested in one call, per
// spec.md §4.6 step 4.
var summaryModules = []string{
	"assetProfile",
	"price",
	"summaryDetail",
	"defaultKeyStatistics",
}

// fetchSummary requests summaryModules for symbol in one call and
// flattens the module dictionaries into a single map (later modules
// overwrite earlier ones on key collision). Falls back to a simpler quote
// endpoint if the module fetch comes back empty.
func (s *Session) fetchSummary(ctx context.Context, symbol string) (map[string]any, error) {
	flattened, err := s.fetchModules(ctx, symbol)
	if err == nil && len(flattened) > 0 {
		return flattened, nil
	}

	fallback, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

func (s *Session) fetchModules(ctx context.Context, symbol string) (map[string]any, error) {
	resp, err := s.doAuthenticated(ctx, func(token string) (*http.Request, error) {
		q := url.Values{}
		for _, m := range summaryModules {
			q.Add("modules", m)
		}
		q.Set("token", token)
		return http.NewRequestWithContext(ctx, http.MethodGet, s.AuthPrefix+"/quoteSummary/"+symbol+"?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		QuoteSummary struct {
			Result []map[string]any `json:"result"`
		} `json:"quoteSummary"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return nil, nil
	}

	flattened := make(map[string]any)
	for _, modules := range parsed.QuoteSummary.Result {
		for _, name := range summaryModules {
			mod, ok := modules[name]
			if !ok {
				continue
			}
			asMap, ok := mod.(map[string]any)
			if !ok {
				continue
			}
			for k, v := range asMap {
				flattened[k] = v
			}
		}
	}
	return flattened, nil
}

func (s *Session) fetchQuote(ctx context.Context, symbol string) (map[string]any, error) {
	resp, err := s.doAuthenticated(ctx, func(token string) (*http.Request, error) {
		q := url.Values{}
		q.Set("symbols", symbol)
		q.Set("token", token)
		return http.NewRequestWithContext(ctx, http.MethodGet, s.AuthPrefix+"/quote?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		QuoteResponse struct {
			Result []map[string]any `json:"result"`
		} `json:"quoteResponse"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.QuoteResponse.Result) == 0 {
		return nil, newLookupError("empty-summary", symbol)
	}
	return parsed.QuoteResponse.Result[0], nil
}
