package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// Repo persists escrow items, forecasts, disbursements, and analyses.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) SaveItem(ctx context.Context, item Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_items (id, loan_id, kind, payee, amount_minor, frequency, next_due_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			payee = EXCLUDED.payee,
			amount_minor = EXCLUDED.amount_minor,
			frequency = EXCLUDED.frequency,
			next_due_date = EXCLUDED.next_due_date,
			active = EXCLUDED.active
	`, item.ID, item.LoanID, item.Kind, item.Payee, item.AmountMinor,
		string(item.Frequency), item.NextDueDate, item.Active)
	if err != nil {
		return fmt.Errorf("upsert escrow item: %w", err)
	}
	return nil
}

func (r *Repo) ActiveItems(ctx context.Context, loanID uuid.UUID) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, kind, payee, amount_minor, frequency, next_due_date, active
		FROM escrow_items WHERE loan_id = $1 AND active
		ORDER BY next_due_date, id
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("query escrow items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var item Item
		var freq string
		if err := rows.Scan(&item.ID, &item.LoanID, &item.Kind, &item.Payee,
			&item.AmountMinor, &freq, &item.NextDueDate, &item.Active); err != nil {
			return nil, fmt.Errorf("scan escrow item: %w", err)
		}
		item.Frequency = Frequency(freq)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ReplaceForecast swaps the loan's forecast horizon in one transaction.
func (r *Repo) ReplaceForecast(ctx context.Context, loanID uuid.UUID, rows []ForecastRow) error {
	return pgpkg.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM escrow_forecast WHERE loan_id = $1`, loanID); err != nil {
			return fmt.Errorf("clear escrow forecast: %w", err)
		}
		for _, row := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO escrow_forecast (loan_id, escrow_id, due_date, amount_minor)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (loan_id, escrow_id, due_date) DO UPDATE SET
					amount_minor = EXCLUDED.amount_minor
			`, row.LoanID, row.EscrowID, row.DueDate, row.AmountMinor); err != nil {
				return fmt.Errorf("insert escrow forecast row: %w", err)
			}
		}
		return nil
	})
}

func (r *Repo) ForecastBetween(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]ForecastRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT loan_id, escrow_id, due_date, amount_minor
		FROM escrow_forecast
		WHERE loan_id = $1 AND due_date >= $2 AND due_date <= $3
		ORDER BY due_date, escrow_id
	`, loanID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query escrow forecast: %w", err)
	}
	defer rows.Close()

	var out []ForecastRow
	for rows.Next() {
		var row ForecastRow
		if err := rows.Scan(&row.LoanID, &row.EscrowID, &row.DueDate, &row.AmountMinor); err != nil {
			return nil, fmt.Errorf("scan escrow forecast row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertDisbursement schedules a disbursement; the partial unique index on
// non-canceled rows makes re-entry a no-op.
func (r *Repo) InsertDisbursement(ctx context.Context, d Disbursement) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_disbursements (id, loan_id, escrow_id, due_date, amount_minor, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (loan_id, escrow_id, due_date) WHERE status <> 'canceled' DO NOTHING
	`, d.ID, d.LoanID, d.EscrowID, d.DueDate, d.AmountMinor, string(d.Status))
	if err != nil {
		return false, fmt.Errorf("insert escrow disbursement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) ScheduledThrough(ctx context.Context, loanID uuid.UUID, asOf time.Time) ([]Disbursement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, escrow_id, due_date, amount_minor, status, event_id
		FROM escrow_disbursements
		WHERE loan_id = $1 AND status = 'scheduled' AND due_date <= $2
		ORDER BY due_date, escrow_id
	`, loanID, asOf)
	if err != nil {
		return nil, fmt.Errorf("query scheduled disbursements: %w", err)
	}
	defer rows.Close()

	var out []Disbursement
	for rows.Next() {
		var d Disbursement
		var status string
		if err := rows.Scan(&d.ID, &d.LoanID, &d.EscrowID, &d.DueDate,
			&d.AmountMinor, &status, &d.EventID); err != nil {
			return nil, fmt.Errorf("scan disbursement: %w", err)
		}
		d.Status = DisbursementStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkPosted transitions a disbursement inside the posting transaction.
func (r *Repo) MarkPosted(ctx context.Context, q pgpkg.Querier, id, eventID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE escrow_disbursements SET status = 'posted', event_id = $2
		WHERE id = $1 AND status = 'scheduled'
	`, id, eventID)
	if err != nil {
		return fmt.Errorf("mark disbursement posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disbursement %s is not in scheduled state", id)
	}
	return nil
}

func (r *Repo) CancelDisbursement(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_disbursements SET status = 'canceled'
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("cancel disbursement: %w", err)
	}
	return nil
}

// MonthlyTarget is the newest analysis's monthly target, zero when the loan
// has never been analyzed.
func (r *Repo) MonthlyTarget(ctx context.Context, loanID uuid.UUID) (int64, error) {
	var target int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT new_monthly_target_minor FROM escrow_analyses
			WHERE loan_id = $1 ORDER BY version DESC LIMIT 1
		), 0)
	`, loanID).Scan(&target)
	if err != nil {
		return 0, fmt.Errorf("query escrow monthly target: %w", err)
	}
	return target, nil
}

// InsertAnalysis stores the next analysis version for the loan.
func (r *Repo) InsertAnalysis(ctx context.Context, a Analysis) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO escrow_analyses (loan_id, version, as_of_date, annual_expected_minor,
			monthly_average_minor, cushion_target_minor, lowest_balance_minor,
			shortage_minor, deficiency_minor, surplus_minor, new_monthly_target_minor,
			deficiency_recovery_monthly_minor, surplus_refund_minor, created_at)
		VALUES ($1,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM escrow_analyses WHERE loan_id = $1),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING version
	`, a.LoanID, a.AsOfDate, a.AnnualExpectedMinor, a.MonthlyAverageMinor,
		a.CushionTargetMinor, a.LowestBalanceMinor, a.ShortageMinor, a.DeficiencyMinor,
		a.SurplusMinor, a.NewMonthlyTargetMinor, a.DeficiencyRecoveryMonthly,
		a.SurplusRefundMinor, a.CreatedAt).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert escrow analysis: %w", err)
	}
	return version, nil
}
