package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func mustDate(s string) time.Time {
	d, err := money.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func activeLoan() loan.Loan {
	return loan.Loan{
		ID:          testutil.TestLoanID,
		ProductCode: "MTG-30",
		Currency:    "USD",
		Status:      loan.StatusActive,
	}
}

func intakeFor(amount int64, currency, effective string) PaymentIntake {
	return PaymentIntake{
		PaymentID:     testutil.TestLoanID2,
		LoanID:        testutil.TestLoanID,
		GatewayTxnID:  "TXN-1",
		AmountMinor:   amount,
		Currency:      currency,
		EffectiveDate: mustDate(effective),
	}
}

func TestEvaluate_RulesInOrder(t *testing.T) {
	now := mustDate("2025-03-15")

	t.Run("loan not found", func(t *testing.T) {
		v := Evaluate(loan.Loan{}, false, intakeFor(1000, "USD", "2025-03-01"), nil, now)
		assert.Equal(t, ValidationFailed, v.Status)
		assert.Equal(t, "loan not found", v.Reason)
	})

	t.Run("terminal loan status", func(t *testing.T) {
		l := activeLoan()
		l.Status = loan.StatusChargedOff
		v := Evaluate(l, true, intakeFor(1000, "USD", "2025-03-01"), nil, now)
		assert.Equal(t, ValidationFailed, v.Status)
		assert.Contains(t, v.Reason, "charged_off")
	})

	t.Run("non-positive amount", func(t *testing.T) {
		v := Evaluate(activeLoan(), true, intakeFor(0, "USD", "2025-03-01"), nil, now)
		assert.Equal(t, ValidationFailed, v.Status)
		assert.Equal(t, "amount must be positive", v.Reason)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		v := Evaluate(activeLoan(), true, intakeFor(1000, "EUR", "2025-03-01"), nil, now)
		assert.Equal(t, ValidationFailed, v.Status)
		assert.Contains(t, v.Reason, "EUR")
	})

	t.Run("future effective date sets retry_after", func(t *testing.T) {
		v := Evaluate(activeLoan(), true, intakeFor(1000, "USD", "2025-03-17"), nil, now)
		assert.Equal(t, ValidationFailed, v.Status)
		assert.Equal(t, int64(2*24*60*60), v.RetryAfter)
	})

	t.Run("valid payment passes", func(t *testing.T) {
		v := Evaluate(activeLoan(), true, intakeFor(1000, "USD", "2025-03-01"), nil, now)
		assert.Equal(t, ValidationPassed, v.Status)
		assert.Empty(t, v.Reason)
		assert.Zero(t, v.RetryAfter)
	})
}

func TestEvaluate_PaymentTypeClassification(t *testing.T) {
	now := mustDate("2025-03-15")
	schedule := []loan.ScheduleRow{
		{PeriodNo: 1, DueDate: mustDate("2025-02-01"), TotalPaymentMinor: 149_888},
		{PeriodNo: 2, DueDate: mustDate("2025-03-01"), TotalPaymentMinor: 149_888},
		{PeriodNo: 3, DueDate: mustDate("2025-04-01"), TotalPaymentMinor: 149_888},
	}

	cases := []struct {
		name   string
		amount int64
		want   PaymentType
	}{
		{"exact scheduled amount", 149_888, PaymentScheduled},
		{"overpayment", 200_000, PaymentOverpayment},
		{"partial", 100_000, PaymentPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(activeLoan(), true, intakeFor(tc.amount, "USD", "2025-03-10"), schedule, now)
			assert.Equal(t, ValidationPassed, v.Status)
			assert.Equal(t, tc.want, v.PaymentType)
		})
	}

	t.Run("no row due yet leaves type empty", func(t *testing.T) {
		v := Evaluate(activeLoan(), true, intakeFor(1000, "USD", "2025-01-15"), schedule, now)
		assert.Equal(t, ValidationPassed, v.Status)
		assert.Empty(t, v.PaymentType)
	})
}

func TestLatestDueRow(t *testing.T) {
	schedule := []loan.ScheduleRow{
		{PeriodNo: 1, DueDate: mustDate("2025-02-01")},
		{PeriodNo: 2, DueDate: mustDate("2025-03-01")},
	}

	assert.Nil(t, latestDueRow(schedule, mustDate("2025-01-31")))
	assert.Equal(t, 1, latestDueRow(schedule, mustDate("2025-02-15")).PeriodNo)
	assert.Equal(t, 2, latestDueRow(schedule, mustDate("2025-03-01")).PeriodNo)
	assert.Equal(t, 2, latestDueRow(schedule, mustDate("2025-06-01")).PeriodNo)
}
