package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	got, err := Name("  foo,   inc.  ")
	require.NoError(t, err)
	assert.Equal(t, "FOO INC", got)

	_, err = Name("   ")
	assert.Error(t, err)
}

func TestISIN(t *testing.T) {
	got, err := ISIN("us0378331005")
	require.NoError(t, err)
	assert.Equal(t, "US0378331005", got)

	_, err = ISIN("not-an-isin")
	assert.Error(t, err)
}

func TestCUSIP(t *testing.T) {
	got, err := CUSIP("037833100")
	require.NoError(t, err)
	assert.Equal(t, "037833100", got)

	_, err = CUSIP("short")
	assert.Error(t, err)
}

func TestFIGI(t *testing.T) {
	got, err := FIGI("bbg000b9xry4")
	require.NoError(t, err)
	assert.Equal(t, "BBG000B9XRY4", got)

	_, err = FIGI("too-short")
	assert.Error(t, err)
}

func TestMICs(t *testing.T) {
	got, err := MICs([]string{"xnas", "XNAS", "xnys"})
	require.NoError(t, err)
	assert.Equal(t, []string{"XNAS", "XNYS"}, got)

	got, err = MICs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCurrency(t *testing.T) {
	got, err := Currency("usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", got)

	_, err = Currency("US")
	assert.Error(t, err)
}

func TestDecimalUSStyle(t *testing.T) {
	got, err := Decimal("1,234.56")
	require.NoError(t, err)
	assert.True(t, got.Equal(mustDecimal(t, "1234.56")))
}

func TestDecimalEUStyle(t *testing.T) {
	got, err := Decimal("1.234,56")
	require.NoError(t, err)
	assert.True(t, got.Equal(mustDecimal(t, "1234.56")))
}

func TestDecimalLeadingPlus(t *testing.T) {
	got, err := Decimal("+12.5")
	require.NoError(t, err)
	assert.True(t, got.Equal(mustDecimal(t, "12.5")))
}

func TestDecimalRejectsNegative(t *testing.T) {
	_, err := Decimal("-5")
	assert.Error(t, err)
}

func TestDecimalRejectsScientific(t *testing.T) {
	_, err := Decimal("1e10")
	assert.Error(t, err)
}

func TestDecimalAmbiguousCommaAsThousands(t *testing.T) {
	got, err := Decimal("1,234")
	require.NoError(t, err)
	assert.True(t, got.Equal(mustDecimal(t, "1234")))
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := Decimal(s)
	require.NoError(t, err)
	return d
}
