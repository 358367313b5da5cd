package escrow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Analyzer runs the annual escrow analysis and persists versioned outcomes.
type Analyzer struct {
	repo   *Repo
	policy Policy
	logger *slog.Logger
}

func NewAnalyzer(repo *Repo, policy Policy, logger *slog.Logger) *Analyzer {
	return &Analyzer{repo: repo, policy: policy, logger: logger}
}

// Run analyzes the coming 12 months from the stored forecast and saves the
// result as the next version for the loan.
func (a *Analyzer) Run(ctx context.Context, loanID uuid.UUID, currentBalanceMinor int64, asOf time.Time) (Analysis, error) {
	horizon := asOf.AddDate(1, 0, 0)
	forecast, err := a.repo.ForecastBetween(ctx, loanID, asOf, horizon)
	if err != nil {
		return Analysis{}, err
	}

	analysis := Analyze(a.policy, currentBalanceMinor, forecast, asOf)
	analysis.LoanID = loanID
	analysis.CreatedAt = time.Now().UTC()

	version, err := a.repo.InsertAnalysis(ctx, analysis)
	if err != nil {
		return Analysis{}, err
	}
	analysis.Version = version

	a.logger.Info("escrow analysis completed",
		"loan_id", loanID,
		"version", version,
		"shortage_minor", analysis.ShortageMinor,
		"deficiency_minor", analysis.DeficiencyMinor,
		"surplus_minor", analysis.SurplusMinor,
		"new_monthly_target_minor", analysis.NewMonthlyTargetMinor,
	)
	return analysis, nil
}

// Analyze projects the escrow balance month by month and derives the
// shortage, deficiency, or surplus outcome.
func Analyze(policy Policy, currentBalanceMinor int64, forecast []ForecastRow, asOf time.Time) Analysis {
	monthly := make([]int64, 12)
	var annualExpected int64
	for _, row := range forecast {
		m := monthIndex(asOf, row.DueDate)
		if m < 0 || m > 11 {
			continue
		}
		monthly[m] += row.AmountMinor
		annualExpected += row.AmountMinor
	}

	monthlyAverage := policy.Rounding.Round(
		decimal.NewFromInt(annualExpected).Div(decimal.NewFromInt(12)))
	cushionTarget := monthlyAverage * int64(policy.CushionMonths)

	// Project the running balance: each month collects the average, then pays
	// that month's disbursements. Track the low-water mark.
	running := currentBalanceMinor
	lowest := currentBalanceMinor
	for m := 0; m < 12; m++ {
		running += monthlyAverage
		running -= monthly[m]
		if running < lowest {
			lowest = running
		}
	}

	a := Analysis{
		AsOfDate:            asOf,
		AnnualExpectedMinor: annualExpected,
		MonthlyAverageMinor: monthlyAverage,
		CushionTargetMinor:  cushionTarget,
		LowestBalanceMinor:  lowest,
	}

	switch {
	case lowest < 0:
		a.DeficiencyMinor = -lowest
		a.ShortageMinor = cushionTarget - currentBalanceMinor + a.DeficiencyMinor
	case lowest < cushionTarget:
		a.ShortageMinor = cushionTarget - lowest
	default:
		surplus := lowest - cushionTarget
		if surplus >= policy.SurplusRefundThresholdMinor {
			a.SurplusMinor = surplus
			if !policy.CollectSurplusAsReduction {
				a.SurplusRefundMinor = surplus
			}
		}
	}

	a.NewMonthlyTargetMinor = monthlyAverage + cushionTarget/12
	if a.ShortageMinor > 0 && policy.ShortageAmortizationMonths > 0 {
		a.NewMonthlyTargetMinor += a.ShortageMinor / int64(policy.ShortageAmortizationMonths)
	}
	if a.SurplusMinor > 0 && policy.CollectSurplusAsReduction {
		a.NewMonthlyTargetMinor -= a.SurplusMinor / 12
	}
	if a.DeficiencyMinor > 0 && policy.DeficiencyAmortizationMonths > 0 {
		a.DeficiencyRecoveryMonthly = a.DeficiencyMinor / int64(policy.DeficiencyAmortizationMonths)
	}
	return a
}

// monthIndex is the number of whole calendar months from asOf's month to
// due's month.
func monthIndex(asOf, due time.Time) int {
	return (due.Year()-asOf.Year())*12 + int(due.Month()) - int(asOf.Month())
}
