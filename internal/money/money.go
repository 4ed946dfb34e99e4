// Package money keeps amounts as int64 minor units (cents) and converts at the
// edges: decimal strings from configuration, floats from the aggregator and
// two-decimal strings for API responses.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

const scale = 2

// FormatMinor renders minor units with exactly two decimals, e.g. 22250 → "222.50".
func FormatMinor(value int64) string {
	return ToDecimal(value).StringFixed(scale)
}

// FromFloat converts an aggregator amount in major units to minor units,
// rounding half away from zero.
func FromFloat(value float64) int64 {
	return FromDecimal(decimal.NewFromFloat(value))
}

func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -scale)
}

func FromDecimal(value decimal.Decimal) int64 {
	return value.Shift(scale).Round(0).IntPart()
}

// ParseDecimal parses a major-unit string such as "25.00" and rejects
// fractions finer than a cent.
func ParseDecimal(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !value.Equal(value.Truncate(scale)) {
		return 0, ErrTooManyDecimals
	}
	return FromDecimal(value), nil
}
