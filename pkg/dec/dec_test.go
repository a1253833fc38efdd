package dec

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.00000000", want: "1"},
		{in: "0.00000001", want: "0.00000001"},
		{in: "-3.5", want: "-3.5"},
		{in: "10", want: "10"},
		{in: "1e8", wantErr: true},
		{in: "1.5E2", wantErr: true},
		{in: "", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "1.", wantErr: true},
		{in: ".5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0x10", wantErr: true},
	}

	for _, tt := range tests {
		d, err := FromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, d.String(), "input %q", tt.in)
	}
}

func TestMulTruncate(t *testing.T) {
	a := decimal.RequireFromString("0.00000003")
	b := decimal.RequireFromString("0.1")

	// exact product is 0.000000003, below peg precision: truncates to zero,
	// never rounds up
	assert.True(t, MulTruncate(a, b, PegPrecision).IsZero())

	p := decimal.RequireFromString("1.99999999")
	q := decimal.RequireFromString("3")
	assert.Equal(t, "5.99999997", ToFixed(MulTruncate(p, q, PegPrecision), PegPrecision))
}

func TestDivTruncate(t *testing.T) {
	a := decimal.RequireFromString("1")
	b := decimal.RequireFromString("3")
	assert.Equal(t, "0.33333333", ToFixed(DivTruncate(a, b, PegPrecision), PegPrecision))

	// 2/3 = 0.666... must truncate, not round half up to 0.66666667
	c := decimal.RequireFromString("2")
	assert.Equal(t, "0.66666666", ToFixed(DivTruncate(c, b, PegPrecision), PegPrecision))
}

func TestDivTruncateHalfwayQuotient(t *testing.T) {
	// 1999999999/2000000000 = 0.9999999995, exactly halfway at the first
	// dropped digit. The floor is 0; a round-then-truncate implementation
	// carries the half up to 1 and over-credits the caller.
	a := decimal.RequireFromString("1999999999")
	b := decimal.RequireFromString("2000000000")
	assert.True(t, DivTruncate(a, b, 0).IsZero())
	assert.Equal(t, "0.99999999", ToFixed(DivTruncate(a, b, PegPrecision), PegPrecision))

	// Same boundary one scale down: 0.15/3 at one decimal place is exactly
	// 0.05, which is representable and must survive untouched.
	e := decimal.RequireFromString("0.15")
	f := decimal.RequireFromString("3")
	assert.Equal(t, "0.05000000", ToFixed(DivTruncate(e, f, PegPrecision), PegPrecision))
}

func TestToFixed(t *testing.T) {
	d := decimal.RequireFromString("10")
	assert.Equal(t, "10.00000000", ToFixed(d, PegPrecision))

	e := decimal.RequireFromString("0.123456789")
	assert.Equal(t, "0.12345678", ToFixed(e, PegPrecision))
}

func TestDecimalPlaces(t *testing.T) {
	tests := []struct {
		in   string
		want int32
	}{
		{"1", 0},
		{"1.5", 1},
		{"1.50", 1},
		{"0.00000001", 8},
		{"1.000000000", 0},
		{"123.456", 3},
	}
	for _, tt := range tests {
		d := decimal.RequireFromString(tt.in)
		assert.Equal(t, tt.want, DecimalPlaces(d), "input %q", tt.in)
	}
}

func TestMinTradeUnit(t *testing.T) {
	assert.Equal(t, "0.00000001", ToFixed(MinTradeUnit, PegPrecision))
	below := decimal.RequireFromString("0.000000009")
	assert.True(t, below.LessThan(MinTradeUnit))
}

func TestSortKeyOrdersNumerically(t *testing.T) {
	prices := []string{"0.00000001", "0.1", "2", "9.5", "10", "100", "9999999999.12345678"}
	for i := 1; i < len(prices); i++ {
		lo := SortKey(decimal.RequireFromString(prices[i-1]))
		hi := SortKey(decimal.RequireFromString(prices[i]))
		require.Less(t, lo, hi, "%s should sort before %s", prices[i-1], prices[i])
		require.Len(t, lo, len(hi))
	}
}
