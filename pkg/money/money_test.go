package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

func TestNewCurrency_Valid(t *testing.T) {
	c, err := money.NewCurrency("USD")
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Code())
}

func TestNewCurrency_Invalid(t *testing.T) {
	for _, code := range []string{"", "usd", "US", "USDX", "U$D"} {
		_, err := money.NewCurrency(code)
		assert.Error(t, err, "code %q", code)
	}
}

func TestRounding_HalfAwayFromZero(t *testing.T) {
	r := money.RoundHalfAwayFromZero
	assert.Equal(t, int64(3), r.Round(decimal.NewFromFloat(2.5)))
	assert.Equal(t, int64(-3), r.Round(decimal.NewFromFloat(-2.5)))
	assert.Equal(t, int64(2), r.Round(decimal.NewFromFloat(2.4)))
}

func TestRounding_HalfEven(t *testing.T) {
	r := money.RoundHalfEven
	assert.Equal(t, int64(2), r.Round(decimal.NewFromFloat(2.5)))
	assert.Equal(t, int64(4), r.Round(decimal.NewFromFloat(3.5)))
	assert.Equal(t, int64(-2), r.Round(decimal.NewFromFloat(-2.5)))
}

func TestParseDecimalMinor(t *testing.T) {
	tests := []struct {
		in   string
		mode money.Rounding
		want int64
	}{
		{"123.45", money.RoundHalfAwayFromZero, 12345},
		{"0.005", money.RoundHalfAwayFromZero, 1},
		{"0.005", money.RoundHalfEven, 0},
		{"-12.34", money.RoundHalfAwayFromZero, -1234},
		{"2500", money.RoundHalfAwayFromZero, 250000},
	}
	for _, tt := range tests {
		got, err := money.ParseDecimalMinor(tt.in, tt.mode)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, "%s (%s)", tt.in, tt.mode)
	}
}

func TestParseDecimalMinor_Invalid(t *testing.T) {
	_, err := money.ParseDecimalMinor("12,34", money.RoundHalfEven)
	assert.Error(t, err)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "1234.56", money.FormatMinor(123456))
	assert.Equal(t, "0.05", money.FormatMinor(5))
	assert.Equal(t, "-12.00", money.FormatMinor(-1200))
}

func TestParseRounding(t *testing.T) {
	_, err := money.ParseRounding("half_up")
	assert.Error(t, err)

	r, err := money.ParseRounding("half_even")
	require.NoError(t, err)
	assert.Equal(t, money.RoundHalfEven, r)
}
