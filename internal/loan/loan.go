// Package loan holds the loan aggregate, product policy, the waterfall
// allocator, and the amortization schedule generator.
package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// Status is the servicing lifecycle state of a loan.
type Status string

const (
	StatusActive        Status = "active"
	StatusPaidOff       Status = "paid_off"
	StatusChargedOff    Status = "charged_off"
	StatusInForeclosure Status = "in_foreclosure"
)

var validStatuses = map[Status]struct{}{
	StatusActive:        {},
	StatusPaidOff:       {},
	StatusChargedOff:    {},
	StatusInForeclosure: {},
}

// ParseStatus validates a loan status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validStatuses[st]; !ok {
		return "", fmt.Errorf("invalid loan status %q", s)
	}
	return st, nil
}

// Terminal reports whether payments may no longer post against the loan.
func (s Status) Terminal() bool {
	return s == StatusPaidOff || s == StatusChargedOff
}

// Loan is the servicing view of a loan. Money state (principal, interest
// receivable, escrow) is never stored here; it is derived from the ledger.
type Loan struct {
	ID              uuid.UUID
	ProductCode     string
	Jurisdiction    string
	PrincipalMinor  int64
	Currency        string
	InterestRateBps int
	TermMonths      int
	OriginationDate time.Time
	Status          Status
	GraceDays       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewLoan creates an active loan ready for schedule generation and funding.
func NewLoan(productCode, jurisdiction string, principalMinor int64, currency string, rateBps, termMonths int, originationDate, now time.Time) (Loan, error) {
	if productCode == "" {
		return Loan{}, errors.New("product code is required")
	}
	if principalMinor <= 0 {
		return Loan{}, errors.New("principal must be positive")
	}
	if termMonths <= 0 {
		return Loan{}, errors.New("term months must be positive")
	}
	if currency == "" {
		return Loan{}, errors.New("currency is required")
	}
	return Loan{
		ID:              uuid.New(),
		ProductCode:     productCode,
		Jurisdiction:    jurisdiction,
		PrincipalMinor:  principalMinor,
		Currency:        currency,
		InterestRateBps: rateBps,
		TermMonths:      termMonths,
		OriginationDate: originationDate,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ProductPolicy configures posting and late-fee behavior per product.
type ProductPolicy struct {
	ProductCode     string
	Currency        string
	Rounding        money.Rounding
	DayCount        money.Convention
	MinPaymentMinor int64
	Waterfall       []Bucket
	LateFee         FeePolicy
}

// DefaultProductPolicy is the USD servicing default.
func DefaultProductPolicy(productCode string) ProductPolicy {
	return ProductPolicy{
		ProductCode:     productCode,
		Currency:        money.USD.Code(),
		Rounding:        money.RoundHalfAwayFromZero,
		DayCount:        money.US30360,
		MinPaymentMinor: 0,
		Waterfall:       DefaultWaterfall(),
		LateFee:         DefaultFeePolicy(),
	}
}

// EffectiveFeePolicy is the product's late-fee policy with any per-loan
// grace override applied.
func EffectiveFeePolicy(p ProductPolicy, l Loan) FeePolicy {
	fee := p.LateFee
	if l.GraceDays > 0 {
		fee.GraceDays = l.GraceDays
	}
	return fee
}

// DefaultFeePolicy is the USD late-fee default: 5% of scheduled principal
// and interest after a 15 day grace period, capped at $50.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		Type:       "percent",
		PercentBps: 500,
		GraceDays:  15,
		CapMinor:   5_000,
		Base:       "scheduled_pi",
	}
}

// FeePolicy configures late-fee assessment per product.
type FeePolicy struct {
	// Type is "amount" or "percent".
	Type        string
	AmountMinor int64
	PercentBps  int
	GraceDays   int
	CapMinor    int64
	// Base is "scheduled_pi", "total_due", or "principal_only".
	Base string
}
