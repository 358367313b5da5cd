package money

import (
	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// LevelPayment computes the fixed periodic payment for an amortizing loan
// using the standard annuity formula:
//
//	payment = pv * r * (1+r)^n / ((1+r)^n - 1)
//
// where r is the monthly rate derived from annualRateBps. The zero-rate path
// is an even split of pv over n. The result is rounded to minor units with
// the given mode.
func LevelPayment(pvMinor int64, annualRateBps int, n int, rounding Rounding) int64 {
	if n <= 0 {
		return 0
	}
	pv := decimal.NewFromInt(pvMinor)
	if annualRateBps == 0 {
		return rounding.Round(pv.Div(decimal.NewFromInt(int64(n))))
	}

	r := decimal.NewFromInt(int64(annualRateBps)).
		Div(bpsDivisor).
		Div(decimal.NewFromInt(12))
	factor := decimal.NewFromInt(1).Add(r).Pow(decimal.NewFromInt(int64(n)))
	payment := pv.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1)))
	return rounding.Round(payment)
}

// MonthlyRate returns the level monthly rate for an annual rate in basis points.
func MonthlyRate(annualRateBps int) decimal.Decimal {
	return decimal.NewFromInt(int64(annualRateBps)).
		Div(bpsDivisor).
		Div(decimal.NewFromInt(12))
}

// PerDiem computes one day of interest on principal at the annual rate.
func PerDiem(principalMinor int64, annualRateBps int, baseDays int, rounding Rounding) int64 {
	return SimpleInterest(principalMinor, annualRateBps, 1, baseDays, rounding)
}

// SimpleInterest computes principal * (bps/10000) * days / baseDays, rounded
// to minor units.
func SimpleInterest(principalMinor int64, annualRateBps int, days, baseDays int, rounding Rounding) int64 {
	if baseDays <= 0 || days == 0 {
		return 0
	}
	interest := decimal.NewFromInt(principalMinor).
		Mul(decimal.NewFromInt(int64(annualRateBps))).
		Div(bpsDivisor).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(int64(baseDays)))
	return rounding.Round(interest)
}
