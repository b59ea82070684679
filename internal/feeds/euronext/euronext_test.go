package euronext

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNameFromAnchor(t *testing.T) {
	assert.Equal(t, "FOO INC", ExtractName(`<a href="/equity/FOO">FOO INC</a>`))
}

func TestExtractNameFallsBackToPlainText(t *testing.T) {
	assert.Equal(t, "FOO INC", ExtractName("FOO INC"))
}

func TestExtractCcyPrice(t *testing.T) {
	ccy, price, ok := ExtractCcyPrice(`EUR <span class="price">12.34</span>`)
	require.True(t, ok)
	assert.Equal(t, "EUR", ccy)
	assert.Equal(t, "12.34", price)
}

func TestExtractCcyPriceMissing(t *testing.T) {
	_, _, ok := ExtractCcyPrice("not a ccy price block")
	assert.False(t, ok)
}

func TestSplitMICsDedupesFirstSeenOrder(t *testing.T) {
	assert.Equal(t, []string{"XPAR", "XAMS"}, SplitMICs("XPAR,XAMS,XPAR"))
}

func TestNormaliseBuildsRawEquity(t *testing.T) {
	row := euronextRow{
		NameHTML: `<a href="/x">FOO INC</a>`,
		Symbol:   "FOO",
		ISIN:     "FR0000000001",
		CcyPrice: `EUR <span>12.34</span>`,
		MICsCSV:  "XPAR,XAMS",
	}
	payload, err := json.Marshal(row)
	require.NoError(t, err)

	eq, err := Normalise(payload)
	require.NoError(t, err)
	assert.Equal(t, "FOO INC", eq.Name)
	assert.Equal(t, "FOO", eq.Symbol)
	require.NotNil(t, eq.Currency)
	assert.Equal(t, "EUR", *eq.Currency)
	require.NotNil(t, eq.LastPrice)
	assert.Equal(t, []string{"XPAR", "XAMS"}, eq.MICs)
}

func TestNormaliseRejectsMalformedPayload(t *testing.T) {
	_, err := Normalise([]byte("not json"))
	assert.Error(t, err)
}

func TestParseRowUsesFallbackMICWhenCellAbsent(t *testing.T) {
	row, ok := parseRow([]string{`<a>FOO</a>`, "FOO", "FR0000000002", "EUR <span>1</span>"}, "XPAR")
	require.True(t, ok)
	assert.Equal(t, "XPAR", row.MICsCSV)
}

func TestParseRowRejectsShortRow(t *testing.T) {
	_, ok := parseRow([]string{"a", "b"}, "XPAR")
	assert.False(t, ok)
}
