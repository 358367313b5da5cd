package loan

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// ScheduleRow is one period of an amortization plan.
type ScheduleRow struct {
	PeriodNo          int
	DueDate           time.Time
	PrincipalMinor    int64
	InterestMinor     int64
	TotalPaymentMinor int64
	BalanceMinor      int64
}

// ScheduleTerms describes the plan to generate. InterestOnlyMonths > 0 defers
// principal for the leading periods; BalloonMonth > 0 truncates the plan with
// the remaining balance due in that period. CustomPrincipal, when set,
// overrides the computed principal portion per period (custom plans).
type ScheduleTerms struct {
	PrincipalMinor     int64
	AnnualRateBps      int
	TermMonths         int
	FirstPaymentDate   time.Time
	DayCount           money.Convention
	Rounding           money.Rounding
	InterestOnlyMonths int
	BalloonMonth       int
	CustomPrincipal    []int64
}

// GenerateSchedule produces the amortization rows for the terms. The final
// period absorbs rounding residue so the balance lands on exactly zero, and
// total principal across rows equals the starting principal.
func GenerateSchedule(t ScheduleTerms) ([]ScheduleRow, error) {
	if t.PrincipalMinor <= 0 {
		return nil, errors.New("principal must be positive")
	}
	if t.TermMonths <= 0 {
		return nil, errors.New("term months must be positive")
	}
	if t.FirstPaymentDate.IsZero() {
		return nil, errors.New("first payment date is required")
	}
	if t.InterestOnlyMonths < 0 || t.InterestOnlyMonths >= t.TermMonths {
		return nil, errors.New("interest-only months must be within the term")
	}
	if t.BalloonMonth < 0 || t.BalloonMonth > t.TermMonths {
		return nil, errors.New("balloon month must be within the term")
	}
	if len(t.CustomPrincipal) > 0 && len(t.CustomPrincipal) != t.TermMonths {
		return nil, errors.New("custom principal must cover every period")
	}

	lastPeriod := t.TermMonths
	if t.BalloonMonth > 0 {
		lastPeriod = t.BalloonMonth
	}

	// Level payment over the amortizing periods after any interest-only lead.
	amortizing := t.TermMonths - t.InterestOnlyMonths
	payment := money.LevelPayment(t.PrincipalMinor, t.AnnualRateBps, amortizing, t.Rounding)

	rows := make([]ScheduleRow, 0, lastPeriod)
	remaining := t.PrincipalMinor
	prevDate := money.AddMonths(t.FirstPaymentDate, -1)

	for period := 1; period <= lastPeriod; period++ {
		dueDate := money.AddMonths(t.FirstPaymentDate, period-1)
		interest := periodInterest(remaining, t.AnnualRateBps, prevDate, dueDate, t.DayCount, t.Rounding)

		var principal int64
		switch {
		case len(t.CustomPrincipal) > 0:
			principal = t.CustomPrincipal[period-1]
		case period <= t.InterestOnlyMonths:
			principal = 0
		default:
			principal = payment - interest
		}

		if principal > remaining {
			principal = remaining
		}
		if principal < 0 {
			principal = 0
		}
		// Final period absorbs rounding residue: the remaining balance is due.
		if period == lastPeriod {
			principal = remaining
		}

		remaining -= principal
		rows = append(rows, ScheduleRow{
			PeriodNo:          period,
			DueDate:           dueDate,
			PrincipalMinor:    principal,
			InterestMinor:     interest,
			TotalPaymentMinor: principal + interest,
			BalanceMinor:      remaining,
		})
		prevDate = dueDate
	}

	return rows, nil
}

// periodInterest computes one period's interest. 30/360 conventions use the
// level monthly rate; ACT conventions accrue on actual days between dates.
func periodInterest(balanceMinor int64, rateBps int, prevDate, dueDate time.Time, c money.Convention, r money.Rounding) int64 {
	if balanceMinor <= 0 || rateBps == 0 {
		return 0
	}
	switch c {
	case money.US30360, money.Euro30360:
		return r.Round(money.MonthlyRate(rateBps).Mul(decimal.NewFromInt(balanceMinor)))
	default:
		days := money.DaysBetween(prevDate, dueDate, c)
		return money.SimpleInterest(balanceMinor, rateBps, days, c.BaseDays(), r)
	}
}
