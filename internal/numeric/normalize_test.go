package numeric

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCleansText(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"plain integer string", "123", 123},
		{"thousands separators", "1,234.56", 1234.56},
		{"currency symbol", "$1,234.56", 1234.56},
		{"accounting negative", "(1,234.56)", -1234.56},
		{"minus sign", "-42.5", -42.5},
		{"surrounding junk", "USD 99.90 approx", 99.90},
		{"float passthrough", 12.5, 12.5},
		{"int passthrough", 7, 7},
		{"bool true", true, 1},
		{"bool false", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Normalize(tt.input), 1e-9)
		})
	}
}

func TestNormalizeFailuresYieldNaN(t *testing.T) {
	for _, input := range []any{nil, "", "abc", "N/A", "--", "(", struct{}{}} {
		assert.True(t, math.IsNaN(Normalize(input)), "input %#v", input)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	// Normalizing an already-normalized value must not change it.
	v := Normalize("(1,234.56)")
	assert.Equal(t, v, Normalize(v))
}

func TestParseIsStrict(t *testing.T) {
	assert.InDelta(t, 12.5, Parse(" 12.5 "), 1e-9)
	assert.InDelta(t, -3.0, Parse(int64(-3)), 1e-9)

	// Parse refuses anything Normalize would clean up.
	assert.True(t, math.IsNaN(Parse("1,234.56")))
	assert.True(t, math.IsNaN(Parse("$5")))
	assert.True(t, math.IsNaN(Parse(nil)))
}

func TestLooksLikeNumber(t *testing.T) {
	assert.True(t, LooksLikeNumber("42"))
	assert.True(t, LooksLikeNumber(3.14))
	assert.False(t, LooksLikeNumber("forty two"))
	assert.False(t, LooksLikeNumber(nil))
}

func TestLooksLikeTime(t *testing.T) {
	assert.True(t, LooksLikeTime("2025-02-01"))
	assert.True(t, LooksLikeTime("01/15/2025"))
	assert.True(t, LooksLikeTime(time.Now()))
	assert.False(t, LooksLikeTime("February"))
	assert.False(t, LooksLikeTime(""))
	assert.False(t, LooksLikeTime(42))
}
