package fxconv

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityagg/equityagg/internal/domain"
)

func withPriceAndCurrency(t *testing.T, price string, currency string) domain.RawEquity {
	t.Helper()
	p := price
	eq, err := domain.NewRawEquity(domain.RawEquityInput{
		Name: "FOO INC", Symbol: "FOO", Currency: currency, LastPrice: &p,
	})
	require.NoError(t, err)
	return eq
}

// S3: FX conversion.
func TestConvertAppliesRate(t *testing.T) {
	c := &Converter{rates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.8")}}
	eq := withPriceAndCurrency(t, "1", "EUR")

	out, err := c.Convert(eq)
	require.NoError(t, err)
	require.NotNil(t, out.Currency)
	assert.Equal(t, "USD", *out.Currency)
	require.NotNil(t, out.LastPrice)
	assert.True(t, out.LastPrice.Equal(decimal.RequireFromString("1.25")))
}

// S4: FX no-op on USD or null.
func TestConvertNoopOnUSD(t *testing.T) {
	c := &Converter{rates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.8")}}
	eq := withPriceAndCurrency(t, "1", "USD")

	out, err := c.Convert(eq)
	require.NoError(t, err)
	assert.True(t, out.Equal(eq))
}

func TestConvertNoopOnNilPrice(t *testing.T) {
	c := &Converter{rates: map[string]decimal.Decimal{}}
	eq, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO INC", Symbol: "FOO", Currency: "EUR"})
	require.NoError(t, err)

	out, err := c.Convert(eq)
	require.NoError(t, err)
	assert.True(t, out.Equal(eq))
}

func TestConvertFailsOnUnknownCurrency(t *testing.T) {
	c := &Converter{rates: map[string]decimal.Decimal{}}
	eq := withPriceAndCurrency(t, "1", "XYZ")

	_, err := c.Convert(eq)
	assert.Error(t, err)
}

func TestConvertFatalOnZeroRate(t *testing.T) {
	c := &Converter{rates: map[string]decimal.Decimal{"EUR": decimal.Zero}}
	eq := withPriceAndCurrency(t, "1", "EUR")

	_, err := c.Convert(eq)
	assert.Error(t, err)
}
