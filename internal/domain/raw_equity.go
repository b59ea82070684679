// Package domain holds the core in-flight and terminal record types that
// flow through the pipeline, plus their construction-time validation.
// Nothing outside this package constructs a RawEquity or CanonicalEquity
// directly — every boundary schema goes through NewRawEquity so vendor
// field names and vendor quirks never leak past this layer.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/equityagg/equityagg/internal/domain/validate"
)

// RawEquity is the common in-flight record threaded through every pipeline
// stage. It is immutable once constructed: every stage that needs to change
// a field builds a new value via With* helpers rather than mutating in
// place.
type RawEquity struct {
	Name           string
	Symbol         string
	ISIN           *string
	CUSIP          *string
	ShareClassFIGI *string
	MICs           []string
	Currency       *string
	LastPrice      *decimal.Decimal
	MarketCap      *decimal.Decimal
}

// RawEquityInput is the unvalidated shape a boundary schema assembles
// before handing it to NewRawEquity. All optional fields use the empty
// string / nil slice / nil decimal to mean "absent".
type RawEquityInput struct {
	Name           string
	Symbol         string
	ISIN           string
	CUSIP          string
	ShareClassFIGI string
	MICs           []string
	Currency       string
	LastPrice      *string
	MarketCap      *string
}

// NewRawEquity validates and normalises an input into a RawEquity. Any
// validator failure returns an error and no record; callers at the pipeline
// level treat that as a dropped record (data error), never a crash.
func NewRawEquity(in RawEquityInput) (RawEquity, error) {
	name, err := validate.Name(in.Name)
	if err != nil {
		return RawEquity{}, fmt.Errorf("raw equity: %w", err)
	}
	symbol, err := validate.Symbol(in.Symbol)
	if err != nil {
		return RawEquity{}, fmt.Errorf("raw equity: %w", err)
	}

	out := RawEquity{Name: name, Symbol: symbol}

	if in.ISIN != "" {
		isin, err := validate.ISIN(in.ISIN)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: %w", err)
		}
		out.ISIN = &isin
	}
	if in.CUSIP != "" {
		cusip, err := validate.CUSIP(in.CUSIP)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: %w", err)
		}
		out.CUSIP = &cusip
	}
	if in.ShareClassFIGI != "" {
		figi, err := validate.FIGI(in.ShareClassFIGI)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: %w", err)
		}
		out.ShareClassFIGI = &figi
	}
	if len(in.MICs) > 0 {
		mics, err := validate.MICs(in.MICs)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: %w", err)
		}
		out.MICs = mics
	}
	if in.Currency != "" {
		cur, err := validate.Currency(in.Currency)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: %w", err)
		}
		out.Currency = &cur
	}
	if in.LastPrice != nil {
		d, err := validate.Decimal(*in.LastPrice)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: last_price: %w", err)
		}
		out.LastPrice = &d
	}
	if in.MarketCap != nil {
		d, err := validate.Decimal(*in.MarketCap)
		if err != nil {
			return RawEquity{}, fmt.Errorf("raw equity: market_cap: %w", err)
		}
		out.MarketCap = &d
	}

	return out, nil
}

// Equal reports whether two RawEquity values are equal in every field.
func (r RawEquity) Equal(o RawEquity) bool {
	if r.Name != o.Name || r.Symbol != o.Symbol {
		return false
	}
	if !strPtrEqual(r.ISIN, o.ISIN) || !strPtrEqual(r.CUSIP, o.CUSIP) || !strPtrEqual(r.ShareClassFIGI, o.ShareClassFIGI) {
		return false
	}
	if !strPtrEqual(r.Currency, o.Currency) {
		return false
	}
	if len(r.MICs) != len(o.MICs) {
		return false
	}
	for i := range r.MICs {
		if r.MICs[i] != o.MICs[i] {
			return false
		}
	}
	if !decPtrEqual(r.LastPrice, o.LastPrice) || !decPtrEqual(r.MarketCap, o.MarketCap) {
		return false
	}
	return true
}

// WithIdentity returns a copy with name/symbol/figi overridden when the
// provided values are non-empty, used by the identify stage.
func (r RawEquity) WithIdentity(name, symbol, figi string) RawEquity {
	out := r
	if name != "" {
		out.Name = name
	}
	if symbol != "" {
		out.Symbol = symbol
	}
	out.ShareClassFIGI = &figi
	return out
}

// FillMissing returns a copy of r with every null field replaced by the
// corresponding field from other; fields already set on r are preserved
// unchanged. Used by the enrich stage (spec.md §4.7: "only null fields in
// the source are filled; non-null fields in the source are preserved").
func (r RawEquity) FillMissing(other RawEquity) RawEquity {
	out := r
	if out.Name == "" {
		out.Name = other.Name
	}
	if out.Symbol == "" {
		out.Symbol = other.Symbol
	}
	if out.ISIN == nil {
		out.ISIN = other.ISIN
	}
	if out.CUSIP == nil {
		out.CUSIP = other.CUSIP
	}
	if out.ShareClassFIGI == nil {
		out.ShareClassFIGI = other.ShareClassFIGI
	}
	if len(out.MICs) == 0 {
		out.MICs = other.MICs
	}
	if out.Currency == nil {
		out.Currency = other.Currency
	}
	if out.LastPrice == nil {
		out.LastPrice = other.LastPrice
	}
	if out.MarketCap == nil {
		out.MarketCap = other.MarketCap
	}
	return out
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
