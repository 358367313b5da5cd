// Package money provides minor-unit monetary arithmetic for the servicing
// engine. All stored amounts are integer counts of the currency's minor unit
// (cents for USD); decimals appear only at boundaries such as external
// payloads and rate math.
package money

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Currency is an ISO 4217 currency code.
type Currency struct {
	code string
}

// NewCurrency creates a Currency after validating the code is exactly 3 uppercase letters.
func NewCurrency(code string) (Currency, error) {
	if !currencyCodeRe.MatchString(code) {
		return Currency{}, fmt.Errorf("invalid currency code %q: must be exactly 3 uppercase letters", code)
	}
	return Currency{code: code}, nil
}

// MustCurrency creates a Currency and panics on error. Intended for package-level
// variable initialization only.
func MustCurrency(code string) Currency {
	c, err := NewCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the ISO 4217 currency code.
func (c Currency) Code() string {
	return c.code
}

// String returns the currency code.
func (c Currency) String() string {
	return c.code
}

// USD is the only currency the core engine posts in; other currencies are
// rejected by the payment validator.
var USD = MustCurrency("USD")

// Rounding selects how fractional minor units are resolved.
type Rounding string

const (
	RoundHalfAwayFromZero Rounding = "half_away_from_zero"
	RoundHalfEven         Rounding = "half_even"
)

// ParseRounding validates a rounding mode string.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(s) {
	case RoundHalfAwayFromZero, RoundHalfEven:
		return Rounding(s), nil
	}
	return "", fmt.Errorf("invalid rounding mode %q", s)
}

// Round resolves d to a whole number of minor units using the mode.
func (r Rounding) Round(d decimal.Decimal) int64 {
	switch r {
	case RoundHalfEven:
		return d.RoundBank(0).IntPart()
	default:
		return d.Round(0).IntPart()
	}
}

// ParseDecimalMinor converts an external decimal amount string (major units,
// e.g. "123.45") to minor units using the given rounding mode.
func ParseDecimalMinor(s string, r Rounding) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal amount %q: %w", s, err)
	}
	return r.Round(d.Mul(decimal.NewFromInt(100))), nil
}

// FormatMinor renders a minor-unit amount as a major-unit decimal string,
// e.g. 123456 -> "1234.56".
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
