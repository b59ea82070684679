// Package merge reduces a group of RawEquity records sharing the same
// share-class FIGI into a single RawEquity, using per-field tie-break rules
// designed to be deterministic given a fixed input order.
package merge

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/fuzzy"
)

// NameClusterThreshold is the minimum token-set similarity score (0-100) at
// which two name spellings are considered the same cluster.
const NameClusterThreshold = 90

// Merge reduces a non-empty group of RawEquity sharing the same FIGI to a
// single RawEquity. It is a fatal data error (not a dropped record) if the
// group is empty or its members disagree on share_class_figi: that would
// mean the caller grouped records incorrectly upstream.
func Merge(group []domain.RawEquity) (domain.RawEquity, error) {
	if len(group) == 0 {
		return domain.RawEquity{}, fmt.Errorf("merge: empty group")
	}
	figi := group[0].ShareClassFIGI
	for _, r := range group[1:] {
		if !strPtrEqual(r.ShareClassFIGI, figi) {
			return domain.RawEquity{}, fmt.Errorf("merge: group has mismatched share_class_figi")
		}
	}

	out := domain.RawEquity{
		Name:           mergeName(group),
		Symbol:         mergeModalString(group, func(r domain.RawEquity) *string { s := r.Symbol; return &s }),
		ISIN:           mergeModalOptionalString(group, func(r domain.RawEquity) *string { return r.ISIN }),
		CUSIP:          mergeModalOptionalString(group, func(r domain.RawEquity) *string { return r.CUSIP }),
		ShareClassFIGI: mergeModalOptionalString(group, func(r domain.RawEquity) *string { return r.ShareClassFIGI }),
		MICs:           mergeMICs(group),
		Currency:       mergeModalOptionalString(group, func(r domain.RawEquity) *string { return r.Currency }),
		LastPrice:      mergeMedian(group, func(r domain.RawEquity) *decimal.Decimal { return r.LastPrice }),
		MarketCap:      mergeMedian(group, func(r domain.RawEquity) *decimal.Decimal { return r.MarketCap }),
	}
	return out, nil
}

func mergeName(group []domain.RawEquity) string {
	type cluster struct {
		representative string
		firstIndex     int
		count          int
	}
	var clusters []*cluster

	for i, r := range group {
		var best *cluster
		bestScore := -1
		for _, c := range clusters {
			score := fuzzy.TokenSetRatio(r.Name, c.representative)
			if score >= NameClusterThreshold && score > bestScore {
				best = c
				bestScore = score
			}
		}
		if best != nil {
			best.count++
			continue
		}
		clusters = append(clusters, &cluster{representative: r.Name, firstIndex: i, count: 1})
	}

	winner := clusters[0]
	for _, c := range clusters[1:] {
		if c.count > winner.count {
			winner = c
		}
	}
	return winner.representative
}

func mergeModalString(group []domain.RawEquity, get func(domain.RawEquity) *string) string {
	v := mergeModalOptionalString(group, get)
	if v == nil {
		return ""
	}
	return *v
}

// mergeModalOptionalString returns the modal non-nil value across the
// group, breaking ties by first occurrence. Returns nil if every value is
// nil.
func mergeModalOptionalString(group []domain.RawEquity, get func(domain.RawEquity) *string) *string {
	counts := make(map[string]int)
	firstIndex := make(map[string]int)
	order := make([]string, 0)

	for i, r := range group {
		v := get(r)
		if v == nil || *v == "" {
			continue
		}
		if _, ok := counts[*v]; !ok {
			firstIndex[*v] = i
			order = append(order, *v)
		}
		counts[*v]++
	}
	if len(order) == 0 {
		return nil
	}

	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] || (counts[v] == counts[best] && firstIndex[v] < firstIndex[best]) {
			best = v
		}
	}
	return &best
}

func mergeMICs(group []domain.RawEquity) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range group {
		for _, m := range r.MICs {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func mergeMedian(group []domain.RawEquity, get func(domain.RawEquity) *decimal.Decimal) *decimal.Decimal {
	var values []decimal.Decimal
	for _, r := range group {
		if v := get(r); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })

	n := len(values)
	var median decimal.Decimal
	if n%2 == 1 {
		median = values[n/2]
	} else {
		median = values[n/2-1].Add(values[n/2]).Div(decimal.NewFromInt(2))
	}
	return &median
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
