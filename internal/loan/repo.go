package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

var ErrLoanNotFound = errors.New("loan not found")

// Repo persists loans and schedule plans.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, l Loan) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO loans (id, product_code, jurisdiction, principal_minor, currency,
		                   interest_rate_bps, term_months, origination_date, status,
		                   grace_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, l.ID, l.ProductCode, l.Jurisdiction, l.PrincipalMinor, l.Currency,
		l.InterestRateBps, l.TermMonths, l.OriginationDate, string(l.Status),
		l.GraceDays, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *Repo) FindByID(ctx context.Context, id uuid.UUID) (Loan, error) {
	var l Loan
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, product_code, jurisdiction, principal_minor, currency,
		       interest_rate_bps, term_months, origination_date, status,
		       grace_days, created_at, updated_at
		FROM loans WHERE id = $1
	`, id).Scan(&l.ID, &l.ProductCode, &l.Jurisdiction, &l.PrincipalMinor, &l.Currency,
		&l.InterestRateBps, &l.TermMonths, &l.OriginationDate, &status,
		&l.GraceDays, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, fmt.Errorf("query loan %s: %w", id, err)
	}
	l.Status = Status(status)
	return l, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE loans SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), now)
	if err != nil {
		return fmt.Errorf("update loan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// ListActive returns loans the daily servicing cycle fans out over.
func (r *Repo) ListActive(ctx context.Context) ([]Loan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_code, jurisdiction, principal_minor, currency,
		       interest_rate_bps, term_months, origination_date, status,
		       grace_days, created_at, updated_at
		FROM loans WHERE status IN ('active', 'in_foreclosure')
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active loans: %w", err)
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		var status string
		if err := rows.Scan(&l.ID, &l.ProductCode, &l.Jurisdiction, &l.PrincipalMinor, &l.Currency,
			&l.InterestRateBps, &l.TermMonths, &l.OriginationDate, &status,
			&l.GraceDays, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		l.Status = Status(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveSchedule stores a regenerated plan as the loan's single active plan.
// The previous active plan is deactivated and the version increments.
func (r *Repo) SaveSchedule(ctx context.Context, loanID uuid.UUID, rows []ScheduleRow) (int, error) {
	var version int
	err := pgpkg.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM schedule_plans WHERE loan_id = $1
		`, loanID).Scan(&version); err != nil {
			return fmt.Errorf("next schedule version: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE schedule_plans SET active = FALSE WHERE loan_id = $1 AND active
		`, loanID); err != nil {
			return fmt.Errorf("deactivate schedule: %w", err)
		}

		planID := uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_plans (plan_id, loan_id, version, active, created_at)
			VALUES ($1, $2, $3, TRUE, NOW())
		`, planID, loanID, version); err != nil {
			return fmt.Errorf("insert schedule plan: %w", err)
		}

		for _, row := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO schedule_rows (plan_id, period_no, due_date, principal_minor,
				                           interest_minor, total_payment_minor, balance_minor)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, planID, row.PeriodNo, row.DueDate, row.PrincipalMinor,
				row.InterestMinor, row.TotalPaymentMinor, row.BalanceMinor); err != nil {
				return fmt.Errorf("insert schedule row %d: %w", row.PeriodNo, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ActiveSchedule loads the rows of the loan's active plan ordered by period.
func (r *Repo) ActiveSchedule(ctx context.Context, loanID uuid.UUID) ([]ScheduleRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sr.period_no, sr.due_date, sr.principal_minor, sr.interest_minor,
		       sr.total_payment_minor, sr.balance_minor
		FROM schedule_rows sr
		JOIN schedule_plans sp ON sp.plan_id = sr.plan_id
		WHERE sp.loan_id = $1 AND sp.active
		ORDER BY sr.period_no
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("query active schedule: %w", err)
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var row ScheduleRow
		if err := rows.Scan(&row.PeriodNo, &row.DueDate, &row.PrincipalMinor,
			&row.InterestMinor, &row.TotalPaymentMinor, &row.BalanceMinor); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
