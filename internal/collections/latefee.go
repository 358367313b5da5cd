package collections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// bpsDivisor converts basis points to a fraction.
const bpsDivisor = 10_000

// LateFeeAssessment is a persisted fee, unique per (loan, period due date).
type LateFeeAssessment struct {
	ID            uuid.UUID
	LoanID        uuid.UUID
	PeriodDueDate time.Time
	AmountMinor   int64
	LedgerEventID uuid.UUID
	AssessedAt    time.Time
}

// FeeBase resolves the policy's base amount from the schedule row.
func FeeBase(policy loan.FeePolicy, row loan.ScheduleRow) int64 {
	switch policy.Base {
	case "principal_only":
		return row.PrincipalMinor
	case "total_due":
		return row.TotalPaymentMinor
	default: // scheduled_pi
		return row.PrincipalMinor + row.InterestMinor
	}
}

// ComputeLateFee returns the fee owed for a missed period, zero when none is
// due. unpaidMinor is the portion of the base still outstanding.
func ComputeLateFee(policy loan.FeePolicy, row loan.ScheduleRow, unpaidMinor int64, asOf time.Time) int64 {
	if unpaidMinor <= 0 {
		return 0
	}
	graceEnd := row.DueDate.AddDate(0, 0, policy.GraceDays)
	if asOf.Before(graceEnd) {
		return 0
	}

	if policy.Type == "amount" {
		return policy.AmountMinor
	}
	fee := FeeBase(policy, row) * int64(policy.PercentBps) / bpsDivisor
	if policy.CapMinor > 0 && fee > policy.CapMinor {
		fee = policy.CapMinor
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// Assessor posts late fees, once per loan and period.
type Assessor struct {
	pool   *pgxpool.Pool
	repo   *Repo
	ledger *ledger.Service
	logger *slog.Logger
}

func NewAssessor(pool *pgxpool.Pool, repo *Repo, ledgerSvc *ledger.Service, logger *slog.Logger) *Assessor {
	return &Assessor{pool: pool, repo: repo, ledger: ledgerSvc, logger: logger}
}

// Assess posts one late fee if the policy produces a positive amount and no
// fee exists for the period yet. The ledger event, the assessment row, and
// the outbox entry commit in one transaction; a duplicate correlation means
// the fee already posted and is acked as a no-op. Returns the amount
// assessed, zero if none.
func (a *Assessor) Assess(ctx context.Context, loanID uuid.UUID, policy loan.FeePolicy, row loan.ScheduleRow, unpaidMinor int64, asOf time.Time) (int64, error) {
	fee := ComputeLateFee(policy, row, unpaidMinor, asOf)
	if fee == 0 {
		return 0, nil
	}

	exists, err := a.repo.FeeExists(ctx, loanID, row.DueDate)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	correlation := fmt.Sprintf("latefee:loan:%s:due:%s", loanID, row.DueDate.Format("2006-01-02"))
	req := ledger.LateFeeAssessment(loanID, asOf, correlation, "USD", fee)

	err = pgpkg.WithTransaction(ctx, a.pool, func(tx pgx.Tx) error {
		eventID, postErr := a.ledger.PostEventTx(ctx, tx, req)
		if postErr != nil {
			return postErr
		}
		if insErr := a.repo.InsertFee(ctx, tx, LateFeeAssessment{
			ID:            uuid.New(),
			LoanID:        loanID,
			PeriodDueDate: row.DueDate,
			AmountMinor:   fee,
			LedgerEventID: eventID,
			AssessedAt:    time.Now().UTC(),
		}); insErr != nil {
			return insErr
		}

		env, envErr := events.NewEnvelope(events.SchemaLateFeeAssessed, correlation, "", map[string]any{
			"loan_id":         loanID,
			"period_due_date": row.DueDate.Format("2006-01-02"),
			"amount_minor":    fee,
			"ledger_event_id": eventID,
		})
		if envErr != nil {
			return envErr
		}
		entry, entryErr := events.NewOutboxEntry(eventID, events.TopicPaymentsEvents, env)
		if entryErr != nil {
			return entryErr
		}
		return a.repo.InsertOutbox(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateCorrelation) {
			a.logger.Info("late fee already posted",
				"loan_id", loanID,
				"period_due_date", row.DueDate.Format("2006-01-02"))
			return 0, nil
		}
		return 0, err
	}

	a.logger.Info("late fee assessed",
		"loan_id", loanID,
		"period_due_date", row.DueDate.Format("2006-01-02"),
		"amount_minor", fee,
	)
	return fee, nil
}
