package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRawEquityMapsFlattenedFields(t *testing.T) {
	summary := map[string]any{
		"longName":           "FOO INCORPORATED",
		"symbol":             "FOO",
		"currency":           "GBP",
		"regularMarketPrice": 12.5,
		"marketCap":          1000000.0,
	}

	eq, err := ToRawEquity(summary, "FALLBACK", "Fallback Name")
	require.NoError(t, err)
	assert.Equal(t, "FOO INCORPORATED", eq.Name)
	assert.Equal(t, "FOO", eq.Symbol)
	require.NotNil(t, eq.Currency)
	assert.Equal(t, "GBP", *eq.Currency)
	require.NotNil(t, eq.LastPrice)
	require.NotNil(t, eq.MarketCap)
}

func TestToRawEquityFallsBackWhenVendorOmitsIdentity(t *testing.T) {
	summary := map[string]any{
		"regularMarketPrice": map[string]any{"raw": 9.75, "fmt": "9.75"},
	}

	eq, err := ToRawEquity(summary, "BAR", "Bar Name")
	require.NoError(t, err)
	assert.Equal(t, "BAR NAME", eq.Name)
	assert.Equal(t, "BAR", eq.Symbol)
	require.NotNil(t, eq.LastPrice)
}

func TestToRawEquityRejectsEmptyName(t *testing.T) {
	_, err := ToRawEquity(map[string]any{}, "", "")
	assert.Error(t, err)
}
