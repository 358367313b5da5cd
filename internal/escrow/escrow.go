// Package escrow runs the impound subsystem: forecasting item due dates,
// scheduling and posting disbursements, and the annual analysis that sets the
// borrower's monthly escrow target.
package escrow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// Frequency is how often an escrow item disburses.
type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semi_annual"
	FrequencyAnnual     Frequency = "annual"
	FrequencyOnce       Frequency = "once"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnual, FrequencyAnnual, FrequencyOnce:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("invalid escrow frequency %q", s)
}

// Step advances a due date by one occurrence. Once-only items jump a century
// so the forecast horizon never reaches them again.
func (f Frequency) Step(d time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return money.AddMonths(d, 1)
	case FrequencyQuarterly:
		return money.AddMonths(d, 3)
	case FrequencySemiAnnual:
		return money.AddMonths(d, 6)
	case FrequencyAnnual:
		return money.AddMonths(d, 12)
	case FrequencyOnce:
		return money.AddMonths(d, 1200)
	}
	return d
}

// Item is one recurring escrow obligation (tax, insurance, HOA).
type Item struct {
	ID          uuid.UUID
	LoanID      uuid.UUID
	Kind        string
	Payee       string
	AmountMinor int64
	Frequency   Frequency
	NextDueDate time.Time
	Active      bool
}

// ForecastRow is one projected disbursement within the forecast horizon.
type ForecastRow struct {
	LoanID      uuid.UUID
	EscrowID    uuid.UUID
	DueDate     time.Time
	AmountMinor int64
}

// DisbursementStatus is the lifecycle of a scheduled disbursement.
type DisbursementStatus string

const (
	DisbursementScheduled DisbursementStatus = "scheduled"
	DisbursementPosted    DisbursementStatus = "posted"
	DisbursementCanceled  DisbursementStatus = "canceled"
)

// Disbursement is a concrete pay-out drawn from the forecast. At most one
// non-canceled disbursement exists per (loan, escrow item, due date).
type Disbursement struct {
	ID          uuid.UUID
	LoanID      uuid.UUID
	EscrowID    uuid.UUID
	DueDate     time.Time
	AmountMinor int64
	Status      DisbursementStatus
	EventID     *uuid.UUID
}

// Policy configures the annual analysis and disbursement behavior.
type Policy struct {
	CushionMonths                int
	SurplusRefundThresholdMinor  int64
	ShortageAmortizationMonths   int
	DeficiencyAmortizationMonths int
	// CollectSurplusAsReduction reduces the monthly target instead of
	// refunding a surplus.
	CollectSurplusAsReduction bool
	// PayWhenInsufficient lets a disbursement post when the escrow balance
	// cannot cover it, advancing the shortfall as a deficiency. When false
	// the disbursement stays scheduled until funds arrive.
	PayWhenInsufficient bool
	Rounding            money.Rounding
}

// DefaultPolicy is the RESPA-style baseline: two-month cushion, 12-month
// amortization, refund surpluses of 50.00 or more, and servicer-advanced
// shortfalls.
func DefaultPolicy() Policy {
	return Policy{
		CushionMonths:                2,
		SurplusRefundThresholdMinor:  5_000,
		ShortageAmortizationMonths:   12,
		DeficiencyAmortizationMonths: 12,
		PayWhenInsufficient:          true,
		Rounding:                     money.RoundHalfAwayFromZero,
	}
}

// Analysis is the persisted outcome of one annual escrow analysis.
type Analysis struct {
	LoanID                    uuid.UUID
	Version                   int
	AsOfDate                  time.Time
	AnnualExpectedMinor       int64
	MonthlyAverageMinor       int64
	CushionTargetMinor        int64
	LowestBalanceMinor        int64
	ShortageMinor             int64
	DeficiencyMinor           int64
	SurplusMinor              int64
	NewMonthlyTargetMinor     int64
	DeficiencyRecoveryMonthly int64
	SurplusRefundMinor        int64
	CreatedAt                 time.Time
}
