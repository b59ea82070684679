package merge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityagg/equityagg/internal/domain"
)

func equity(t *testing.T, name, symbol, figi string, price *string) domain.RawEquity {
	t.Helper()
	in := domain.RawEquityInput{Name: name, Symbol: symbol, ShareClassFIGI: figi, LastPrice: price}
	r, err := domain.NewRawEquity(in)
	require.NoError(t, err)
	return r
}

func strp(s string) *string { return &s }

// S1: Merge majority wins.
func TestMergeMajorityWins(t *testing.T) {
	group := []domain.RawEquity{
		equity(t, "FOO INC", "FOO", "BBG000000001", nil),
		equity(t, "FOO INC.", "FOO", "BBG000000001", nil),
		equity(t, "BAR CORP", "FOO", "BBG000000001", nil),
	}

	merged, err := Merge(group)
	require.NoError(t, err)
	assert.Equal(t, "FOO INC", merged.Name)
	assert.Equal(t, "FOO", merged.Symbol)
}

// S2: Merge median of prices.
func TestMergeMedianPrices(t *testing.T) {
	group := []domain.RawEquity{
		equity(t, "FOO INC", "FOO", "BBG000000002", strp("1")),
		equity(t, "FOO INC", "FOO", "BBG000000002", strp("9")),
	}

	merged, err := Merge(group)
	require.NoError(t, err)
	require.NotNil(t, merged.LastPrice)
	assert.True(t, merged.LastPrice.Equal(decimal.NewFromInt(5)))
}

func TestMergeRejectsMismatchedFIGI(t *testing.T) {
	group := []domain.RawEquity{
		equity(t, "FOO INC", "FOO", "BBG000000001", nil),
		equity(t, "FOO INC", "FOO", "BBG000000002", nil),
	}
	_, err := Merge(group)
	assert.Error(t, err)
}

func TestMergeMICsUnionFirstSeenOrder(t *testing.T) {
	a, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO", Symbol: "FOO", ShareClassFIGI: "BBG000000003", MICs: []string{"XNYS", "XNAS"}})
	require.NoError(t, err)
	b, err := domain.NewRawEquity(domain.RawEquityInput{Name: "FOO", Symbol: "FOO", ShareClassFIGI: "BBG000000003", MICs: []string{"XNAS", "XLON"}})
	require.NoError(t, err)

	merged, err := Merge([]domain.RawEquity{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"XNYS", "XNAS", "XLON"}, merged.MICs)
}

func TestMergeIdempotentOnSingleton(t *testing.T) {
	r := equity(t, "FOO INC", "FOO", "BBG000000004", strp("1.5"))
	merged, err := Merge([]domain.RawEquity{r})
	require.NoError(t, err)
	assert.True(t, merged.Equal(r))
}
