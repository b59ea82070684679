package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Identity is the immutable identifying portion of a CanonicalEquity.
type Identity struct {
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	ShareClassFIGI string  `json:"share_class_figi"`
	ISIN           *string `json:"isin,omitempty"`
	CUSIP          *string `json:"cusip,omitempty"`
}

// Financials is the priced/venue portion of a CanonicalEquity.
type Financials struct {
	MICs      []string         `json:"mics,omitempty"`
	Currency  *string          `json:"currency,omitempty"`
	LastPrice *decimal.Decimal `json:"last_price,omitempty"`
	MarketCap *decimal.Decimal `json:"market_cap,omitempty"`
}

// CanonicalEquity is the terminal record emitted by the pipeline, uniquely
// keyed by share-class FIGI.
type CanonicalEquity struct {
	Identity   Identity   `json:"identity"`
	Financials Financials `json:"financials"`
}

// NewCanonicalEquity builds a CanonicalEquity from a fully-identified
// RawEquity. ShareClassFIGI is required; the call fails if it is absent.
func NewCanonicalEquity(r RawEquity) (CanonicalEquity, error) {
	if r.ShareClassFIGI == nil || *r.ShareClassFIGI == "" {
		return CanonicalEquity{}, fmt.Errorf("canonical equity: share_class_figi is required")
	}
	return CanonicalEquity{
		Identity: Identity{
			Name:           r.Name,
			Symbol:         r.Symbol,
			ShareClassFIGI: *r.ShareClassFIGI,
			ISIN:           r.ISIN,
			CUSIP:          r.CUSIP,
		},
		Financials: Financials{
			MICs:      r.MICs,
			Currency:  r.Currency,
			LastPrice: r.LastPrice,
			MarketCap: r.MarketCap,
		},
	}, nil
}

// FIGI is a convenience accessor used by the Cache Store and export path.
func (c CanonicalEquity) FIGI() string { return c.Identity.ShareClassFIGI }
