package collections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

var ErrPlanNotFound = errors.New("payment plan not found")

// Repo persists snapshots, late fees, plans, and foreclosure cases.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) UpsertSnapshot(ctx context.Context, s Snapshot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delinquency_snapshots (loan_id, as_of_date, earliest_unpaid_due,
			days_past_due, bucket, total_scheduled_minor, total_applied_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (loan_id, as_of_date) DO UPDATE SET
			earliest_unpaid_due = EXCLUDED.earliest_unpaid_due,
			days_past_due = EXCLUDED.days_past_due,
			bucket = EXCLUDED.bucket,
			total_scheduled_minor = EXCLUDED.total_scheduled_minor,
			total_applied_minor = EXCLUDED.total_applied_minor
	`, s.LoanID, s.AsOfDate, s.EarliestUnpaidDue, s.DaysPastDue,
		string(s.Bucket), s.TotalScheduledMinor, s.TotalAppliedMinor)
	if err != nil {
		return fmt.Errorf("upsert delinquency snapshot: %w", err)
	}
	return nil
}

// LatestSnapshotBefore returns the most recent snapshot strictly before asOf,
// or nil when none exists.
func (r *Repo) LatestSnapshotBefore(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*Snapshot, error) {
	var s Snapshot
	var bucket string
	err := r.pool.QueryRow(ctx, `
		SELECT loan_id, as_of_date, earliest_unpaid_due, days_past_due, bucket,
		       total_scheduled_minor, total_applied_minor
		FROM delinquency_snapshots
		WHERE loan_id = $1 AND as_of_date < $2
		ORDER BY as_of_date DESC
		LIMIT 1
	`, loanID, asOf).Scan(&s.LoanID, &s.AsOfDate, &s.EarliestUnpaidDue, &s.DaysPastDue,
		&bucket, &s.TotalScheduledMinor, &s.TotalAppliedMinor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query delinquency snapshot: %w", err)
	}
	s.Bucket = DelinquencyBucket(bucket)
	return &s, nil
}

// LatestSnapshot returns the most recent snapshot on or before asOf.
func (r *Repo) LatestSnapshot(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*Snapshot, error) {
	return r.LatestSnapshotBefore(ctx, loanID, asOf.AddDate(0, 0, 1))
}

func (r *Repo) FeeExists(ctx context.Context, loanID uuid.UUID, periodDueDate time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM late_fee_assessments WHERE loan_id = $1 AND period_due_date = $2
		)
	`, loanID, periodDueDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check late fee: %w", err)
	}
	return exists, nil
}

// InsertFee writes the assessment inside the caller's posting transaction.
func (r *Repo) InsertFee(ctx context.Context, q pgpkg.Querier, f LateFeeAssessment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO late_fee_assessments (id, loan_id, period_due_date, amount_minor,
			ledger_event_id, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (loan_id, period_due_date) DO NOTHING
	`, f.ID, f.LoanID, f.PeriodDueDate, f.AmountMinor, f.LedgerEventID, f.AssessedAt)
	if err != nil {
		return fmt.Errorf("insert late fee: %w", err)
	}
	return nil
}

// AssessedFeesThrough sums fee amounts assessed on or before asOf.
func (r *Repo) AssessedFeesThrough(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM late_fee_assessments
		WHERE loan_id = $1 AND period_due_date <= $2
	`, loanID, asOf).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum assessed fees: %w", err)
	}
	return total, nil
}

// SavePlan writes the plan and its installments. One active plan per loan is
// enforced by a partial unique index.
func (r *Repo) SavePlan(ctx context.Context, p Plan) error {
	return pgpkg.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_plans (id, loan_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at
		`, p.ID, p.LoanID, string(p.Status), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert payment plan: %w", err)
		}

		for _, inst := range p.Installments {
			_, err := tx.Exec(ctx, `
				INSERT INTO plan_installments (plan_id, installment_no, due_date,
					scheduled_minor, paid_minor, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (plan_id, installment_no) DO UPDATE SET
					paid_minor = EXCLUDED.paid_minor,
					status = EXCLUDED.status
			`, p.ID, inst.InstallmentNo, inst.DueDate, inst.ScheduledMinor,
				inst.PaidMinor, string(inst.Status))
			if err != nil {
				return fmt.Errorf("upsert plan installment %d: %w", inst.InstallmentNo, err)
			}
		}
		return nil
	})
}

// ActivePlan loads the loan's active plan with installments, or nil.
func (r *Repo) ActivePlan(ctx context.Context, loanID uuid.UUID) (*Plan, error) {
	var p Plan
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, loan_id, status, created_at, updated_at
		FROM payment_plans WHERE loan_id = $1 AND status = 'active'
	`, loanID).Scan(&p.ID, &p.LoanID, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query active plan: %w", err)
	}
	p.Status = PlanStatus(status)

	rows, err := r.pool.Query(ctx, `
		SELECT installment_no, due_date, scheduled_minor, paid_minor, status
		FROM plan_installments WHERE plan_id = $1
		ORDER BY installment_no
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query plan installments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst Installment
		var instStatus string
		if err := rows.Scan(&inst.InstallmentNo, &inst.DueDate, &inst.ScheduledMinor,
			&inst.PaidMinor, &instStatus); err != nil {
			return nil, fmt.Errorf("scan plan installment: %w", err)
		}
		inst.Status = InstallmentStatus(instStatus)
		p.Installments = append(p.Installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ActivePlans lists all active plans for the daily default sweep.
func (r *Repo) ActivePlans(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT loan_id FROM payment_plans WHERE status = 'active' ORDER BY loan_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan loan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// OpenCase returns the loan's open foreclosure case, or nil.
func (r *Repo) OpenCase(ctx context.Context, loanID uuid.UUID) (*ForeclosureCase, error) {
	var c ForeclosureCase
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, loan_id, status, opened_at, closed_at
		FROM foreclosure_cases WHERE loan_id = $1 AND status = 'open'
	`, loanID).Scan(&c.ID, &c.LoanID, &status, &c.OpenedAt, &c.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query open foreclosure case: %w", err)
	}
	c.Status = CaseStatus(status)
	return &c, nil
}

// FindCase loads a foreclosure case by id.
func (r *Repo) FindCase(ctx context.Context, id uuid.UUID) (ForeclosureCase, error) {
	var c ForeclosureCase
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, loan_id, status, opened_at, closed_at
		FROM foreclosure_cases WHERE id = $1
	`, id).Scan(&c.ID, &c.LoanID, &status, &c.OpenedAt, &c.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ForeclosureCase{}, fmt.Errorf("foreclosure case %s not found", id)
		}
		return ForeclosureCase{}, fmt.Errorf("query foreclosure case: %w", err)
	}
	c.Status = CaseStatus(status)
	return c, nil
}

func (r *Repo) InsertCase(ctx context.Context, c ForeclosureCase) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO foreclosure_cases (id, loan_id, status, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.LoanID, string(c.Status), c.OpenedAt, c.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert foreclosure case: %w", err)
	}
	return nil
}

func (r *Repo) UpdateCase(ctx context.Context, c ForeclosureCase) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE foreclosure_cases SET status = $2, closed_at = $3 WHERE id = $1
	`, c.ID, string(c.Status), c.ClosedAt)
	if err != nil {
		return fmt.Errorf("update foreclosure case: %w", err)
	}
	return nil
}

// InsertMilestone records a milestone once; re-recording is a no-op. Returns
// whether the row was inserted.
func (r *Repo) InsertMilestone(ctx context.Context, m MilestoneRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO foreclosure_milestones (case_id, milestone, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (case_id, milestone) DO NOTHING
	`, m.CaseID, string(m.Milestone), m.RecordedAt)
	if err != nil {
		return false, fmt.Errorf("insert foreclosure milestone: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertOutbox writes an outbox entry on the supplied querier, which may be
// the repo's pool or an open transaction.
func (r *Repo) InsertOutbox(ctx context.Context, q pgpkg.Querier, entry events.OutboxEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, event_id, topic, payload, created_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, entry.ID, entry.EventID, entry.Topic, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
