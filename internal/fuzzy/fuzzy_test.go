package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatioIdentical(t *testing.T) {
	assert.Equal(t, 100, Ratio("FOO INC", "FOO INC"))
}

func TestTokenSetRatioNearIdentical(t *testing.T) {
	score := TokenSetRatio("FOO INC", "FOO INC.")
	assert.GreaterOrEqual(t, score, 90)
}

func TestTokenSetRatioSubset(t *testing.T) {
	score := TokenSetRatio("FOO INC", "FOO INC OF AMERICA")
	assert.Equal(t, 100, score)
}

func TestTokenSetRatioDissimilar(t *testing.T) {
	score := TokenSetRatio("FOO INC", "BAR CORP")
	assert.Less(t, score, 90)
}

func TestTokenSortRatioWordOrder(t *testing.T) {
	assert.Equal(t, 100, TokenSortRatio("INC FOO", "FOO INC"))
}
