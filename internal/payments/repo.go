package payments

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

var ErrIntakeNotFound = errors.New("payment intake not found")

// Repo persists pipeline stage rows. Methods take a Querier so stages can
// compose their writes with the ledger and outbox in one transaction.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Pool() *pgxpool.Pool { return r.pool }

// InsertIntake writes the intake row. Returns false without error when a row
// with the same idempotency key already exists (silent dedupe).
func (r *Repo) InsertIntake(ctx context.Context, q pgpkg.Querier, in PaymentIntake) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO payment_intake (payment_id, loan_id, gateway_txn_id, amount_minor,
		                            currency, effective_date, source, idempotency_key, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, in.PaymentID, in.LoanID, in.GatewayTxnID, in.AmountMinor,
		in.Currency, in.EffectiveDate, in.Source, in.IdempotencyKey, in.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert payment intake: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) FindIntake(ctx context.Context, paymentID uuid.UUID) (PaymentIntake, error) {
	var in PaymentIntake
	err := r.pool.QueryRow(ctx, `
		SELECT payment_id, loan_id, gateway_txn_id, amount_minor, currency,
		       effective_date, source, idempotency_key, received_at
		FROM payment_intake WHERE payment_id = $1
	`, paymentID).Scan(&in.PaymentID, &in.LoanID, &in.GatewayTxnID, &in.AmountMinor,
		&in.Currency, &in.EffectiveDate, &in.Source, &in.IdempotencyKey, &in.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentIntake{}, ErrIntakeNotFound
		}
		return PaymentIntake{}, fmt.Errorf("query payment intake %s: %w", paymentID, err)
	}
	return in, nil
}

// InsertValidation records the validator outcome, idempotent per payment.
func (r *Repo) InsertValidation(ctx context.Context, q pgpkg.Querier, v PaymentValidation) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment_validation (payment_id, status, reason, retry_after_seconds,
		                                payment_type, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			retry_after_seconds = EXCLUDED.retry_after_seconds,
			payment_type = EXCLUDED.payment_type,
			validated_at = EXCLUDED.validated_at
	`, v.PaymentID, string(v.Status), v.Reason, v.RetryAfter, string(v.PaymentType), v.ValidatedAt)
	if err != nil {
		return fmt.Errorf("insert payment validation: %w", err)
	}
	return nil
}

// InsertPosting links the payment to its ledger event.
func (r *Repo) InsertPosting(ctx context.Context, q pgpkg.Querier, p PaymentPosting) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment_posting (payment_id, ledger_event_id, correlation_id, posted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
	`, p.PaymentID, p.LedgerEventID, p.CorrelationID, p.PostedAt)
	if err != nil {
		return fmt.Errorf("insert payment posting: %w", err)
	}
	return nil
}

// AppliedThrough sums posted payment credits per bucket account for a loan on
// or before asOf. Collections uses this for cumulative applied amounts.
func (r *Repo) AppliedThrough(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(i.amount_minor), 0)
		FROM payment_posting p
		JOIN payment_intake i ON i.payment_id = p.payment_id
		WHERE i.loan_id = $1 AND i.effective_date <= $2
	`, loanID, asOf).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum applied payments: %w", err)
	}
	return total, nil
}
