// Package dec wraps shopspring/decimal with the rounding rules the chain
// requires. All monetary math truncates (rounds toward zero) so that a
// division or multiplication can never credit more than was paid in.
package dec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PegPrecision is the number of decimal places of the peg token that
// denominates every market price.
const PegPrecision = 8

// PegSymbol is the settlement currency all order books are priced in.
const PegSymbol = "SWAP.PEG"

// MinTradeUnit is the smallest representable peg value (10^-8). No trade or
// resting order may ever be worth less than this.
var MinTradeUnit = decimal.New(1, -PegPrecision)

var Zero = decimal.Zero

// numericString accepts plain decimal notation only. Scientific notation,
// signs other than a single leading minus, and empty strings are rejected so
// that every node parses payload amounts identically.
var numericString = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// FromString parses a strict numeric string. Unlike decimal.NewFromString it
// rejects exponent notation and other representations that would allow two
// distinct wire forms of the same value.
func FromString(s string) (decimal.Decimal, error) {
	if !numericString.MatchString(s) {
		return decimal.Zero, fmt.Errorf("invalid numeric string %q", s)
	}
	return decimal.NewFromString(s)
}

// MulTruncate multiplies a and b and truncates the exact product to prec
// decimal places.
func MulTruncate(a, b decimal.Decimal, prec int32) decimal.Decimal {
	return a.Mul(b).Truncate(prec)
}

// DivTruncate divides a by b and truncates the exact quotient to prec
// decimal places. QuoRem computes the integer-multiple-of-10^-prec quotient
// directly; no intermediate rounding can carry a digit across the truncation
// boundary, no matter how close the true quotient sits to it.
func DivTruncate(a, b decimal.Decimal, prec int32) decimal.Decimal {
	q, _ := a.QuoRem(b, prec)
	return q
}

// ToFixed renders d truncated to prec decimal places, zero padded. This is
// the canonical wire format ("1.00000000"), part of the consensus-critical
// serialization.
func ToFixed(d decimal.Decimal, prec int32) string {
	return d.Truncate(prec).StringFixed(prec)
}

// sortKeyIntegerDigits bounds the integer part of a sortable key. Wide
// enough for any supply the 10^-8 minimum unit can accumulate.
const sortKeyIntegerDigits = 24

// SortKey renders a non-negative decimal as a fixed-width zero-padded string
// whose lexicographic order equals its numeric order. Stored decimals live in
// TEXT columns so sqlite never coerces them through a binary float; the key
// column is what indexed price ordering and range scans compare against.
func SortKey(d decimal.Decimal) string {
	s := d.Truncate(PegPrecision).StringFixed(PegPrecision)
	pad := sortKeyIntegerDigits - strings.IndexByte(s, '.')
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat("0", pad) + s
}

// DecimalPlaces reports how many digits d carries after the decimal point,
// used to validate user amounts against a token's declared precision.
func DecimalPlaces(d decimal.Decimal) int32 {
	places := -d.Exponent()
	// Trailing zeros in the coefficient do not count as significant places.
	for places > 0 && d.Truncate(places-1).Equal(d) {
		places--
	}
	if places < 0 {
		return 0
	}
	return places
}
