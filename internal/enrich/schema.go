package enrich

import (
	"fmt"
	"strconv"

	"github.com/equityagg/equityagg/internal/domain"
)

// ToRawEquity validates a flattened summary map against the enrichment
// schema (spec.md §4.7 enrich stage, step "validate the fetched payload
// against an enrichment schema") and builds a RawEquity in the vendor's
// native currency. fallbackSymbol/fallbackName are used when the vendor
// payload omits its own symbol/name, which happens on the fuzzy-fallback
// attempt path.
func ToRawEquity(summary map[string]any, fallbackSymbol, fallbackName string) (domain.RawEquity, error) {
	in := domain.RawEquityInput{
		Name:   firstNonEmpty(stringField(summary, "longName"), stringField(summary, "shortName"), fallbackName),
		Symbol: firstNonEmpty(stringField(summary, "symbol"), fallbackSymbol),
	}

	if cur := stringField(summary, "currency"); cur != "" {
		in.Currency = cur
	}
	if price, ok := numberField(summary, "regularMarketPrice"); ok {
		s := strconv.FormatFloat(price, 'f', -1, 64)
		in.LastPrice = &s
	}
	if cap, ok := numberField(summary, "marketCap"); ok {
		s := strconv.FormatFloat(cap, 'f', -1, 64)
		in.MarketCap = &s
	}

	eq, err := domain.NewRawEquity(in)
	if err != nil {
		return domain.RawEquity{}, fmt.Errorf("enrich: schema: %w", err)
	}
	return eq, nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func numberField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case map[string]any:
		if raw, ok := n["raw"].(float64); ok {
			return raw, true
		}
	}
	return 0, false
}
