// Package money converts between exact decimal strings and int64 minor units (cents).
package money

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrOutOfRange      = errors.New("amount out of range")
)

const minorDigits = 2

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ParseMinor accepts an optional sign, digits and at most two fractional
// digits. Exponents and thousands separators are rejected.
func ParseMinor(input string) (int64, error) {
	text := strings.TrimSpace(input)
	negative := false
	if text != "" && (text[0] == '-' || text[0] == '+') {
		negative = text[0] == '-'
		text = text[1:]
	}
	if text == "" {
		return 0, ErrInvalidAmount
	}
	whole, frac, hasPoint := strings.Cut(text, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasPoint && (frac == "" || !isDigits(frac))) {
		return 0, ErrInvalidAmount
	}
	if len(frac) > minorDigits {
		return 0, ErrTooManyDecimals
	}
	value, err := decimal.NewFromString(whole + "." + frac + "0")
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if negative {
		value = value.Neg()
	}
	return FromDecimal(value)
}

func FormatMinor(value int64) string {
	return ToDecimal(value).StringFixed(minorDigits)
}

// FromDecimal converts a NUMERIC value into minor units. Values that would need
// rounding are rejected.
func FromDecimal(value decimal.Decimal) (int64, error) {
	scaled := value.Shift(minorDigits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrTooManyDecimals
	}
	if scaled.GreaterThan(maxMinor) || scaled.LessThan(minMinor) {
		return 0, ErrOutOfRange
	}
	return scaled.IntPart(), nil
}

func ToDecimal(value int64) decimal.Decimal {
	return decimal.New(value, -minorDigits)
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
