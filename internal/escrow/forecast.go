package escrow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// forecastHorizonMonths is how far ahead the forecast projects.
const forecastHorizonMonths = 12

// Forecaster rebuilds the rolling disbursement forecast for a loan.
type Forecaster struct {
	repo   *Repo
	logger *slog.Logger
}

func NewForecaster(repo *Repo, logger *slog.Logger) *Forecaster {
	return &Forecaster{repo: repo, logger: logger}
}

// Rebuild replaces the loan's forecast horizon from its active items.
func (f *Forecaster) Rebuild(ctx context.Context, loanID uuid.UUID, asOf time.Time) ([]ForecastRow, error) {
	items, err := f.repo.ActiveItems(ctx, loanID)
	if err != nil {
		return nil, err
	}

	rows := ProjectItems(items, asOf)
	if err := f.repo.ReplaceForecast(ctx, loanID, rows); err != nil {
		return nil, err
	}

	f.logger.Info("escrow forecast rebuilt",
		"loan_id", loanID,
		"items", len(items),
		"rows", len(rows),
	)
	return rows, nil
}

// ProjectItems rolls each item's due date forward to asOf, then emits every
// occurrence inside the horizon.
func ProjectItems(items []Item, asOf time.Time) []ForecastRow {
	horizon := money.AddMonths(asOf, forecastHorizonMonths)

	var rows []ForecastRow
	for _, item := range items {
		due := item.NextDueDate
		for due.Before(asOf) {
			due = item.Frequency.Step(due)
		}
		for !due.After(horizon) {
			rows = append(rows, ForecastRow{
				LoanID:      item.LoanID,
				EscrowID:    item.ID,
				DueDate:     due,
				AmountMinor: item.AmountMinor,
			})
			due = item.Frequency.Step(due)
		}
	}
	return rows
}
