package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// PolicyProvider resolves the product policy governing a loan's posting.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, l loan.Loan) (loan.ProductPolicy, error)
}

// DueProvider supplies past-due interest and unpaid escrow amounts, when the
// collections and escrow engines have figures for the loan. A nil provider
// means zero for both.
type DueProvider interface {
	PastDueInterest(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error)
	EscrowDue(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error)
}

// StatusWriter moves a loan through its servicing lifecycle.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status loan.Status, now time.Time) error
}

// Poster is the final pipeline stage. It allocates a validated payment across
// the waterfall and posts the balanced ledger event, the posting row, and the
// outbox notification in one transaction.
type Poster struct {
	pool      *pgxpool.Pool
	repo      *Repo
	outbox    *OutboxRepo
	ledger    *ledger.Service
	loans     LoanReader
	schedules ScheduleReader
	policies  PolicyProvider
	due       DueProvider
	statuses  StatusWriter
	logger    *slog.Logger
}

func NewPoster(pool *pgxpool.Pool, repo *Repo, outbox *OutboxRepo, ledgerSvc *ledger.Service,
	loans LoanReader, schedules ScheduleReader, policies PolicyProvider, due DueProvider,
	statuses StatusWriter, logger *slog.Logger) *Poster {
	return &Poster{
		pool: pool, repo: repo, outbox: outbox, ledger: ledgerSvc,
		loans: loans, schedules: schedules, policies: policies, due: due,
		statuses: statuses, logger: logger,
	}
}

// Handler adapts the stage to a broker consumer.
func (s *Poster) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.DecodeEnvelope(msg.Value)
		if err != nil {
			return kafka.Permanent(err)
		}
		if env.Schema != events.SchemaPaymentValidated {
			return nil
		}
		var payload ValidatedPayload
		if err := env.DecodePayload(&payload); err != nil {
			return kafka.Permanent(err)
		}
		return s.Handle(ctx, payload.PaymentID)
	}
}

// Handle posts one validated payment. Redelivery after a successful post is
// detected by the ledger's correlation uniqueness and acked silently.
func (s *Poster) Handle(ctx context.Context, paymentID uuid.UUID) error {
	intake, err := s.repo.FindIntake(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrIntakeNotFound) {
			return kafka.Permanent(err)
		}
		return err
	}
	l, err := s.loans.FindByID(ctx, intake.LoanID)
	if err != nil {
		if errors.Is(err, loan.ErrLoanNotFound) {
			return s.fail(ctx, intake, err)
		}
		return err
	}
	policy, err := s.policies.PolicyFor(ctx, l)
	if err != nil {
		return err
	}
	schedule, err := s.schedules.ActiveSchedule(ctx, intake.LoanID)
	if err != nil {
		return err
	}
	balances, err := s.ledger.LatestBalances(ctx, intake.LoanID)
	if err != nil {
		return err
	}

	var pastDueInterest, escrowDue int64
	if s.due != nil {
		pastDueInterest, err = s.due.PastDueInterest(ctx, intake.LoanID, intake.EffectiveDate)
		if err != nil {
			return err
		}
		escrowDue, err = s.due.EscrowDue(ctx, intake.LoanID, intake.EffectiveDate)
		if err != nil {
			return err
		}
	}

	outstanding := ComputeOutstanding(balances, latestDueRow(schedule, intake.EffectiveDate), pastDueInterest, escrowDue)
	allocations := loan.Allocate(intake.AmountMinor, policy.Waterfall, outstanding)
	credits := loan.CreditLines(allocations, policy.Currency)

	correlation := CorrelationID(intake.LoanID, intake.GatewayTxnID)
	req := ledger.PaymentReceived(intake.LoanID, intake.EffectiveDate, correlation,
		policy.Currency, intake.AmountMinor, credits)

	// Concurrent postings against the same loan can trip serialization
	// failures on the balance-bearing rows; retry before surfacing.
	now := time.Now().UTC()
	err = pgpkg.WithSerializableRetry(ctx, s.pool, 3, func(tx pgx.Tx) error {
		eventID, postErr := s.ledger.PostEventTx(ctx, tx, req)
		if postErr != nil {
			return postErr
		}
		if insErr := s.repo.InsertPosting(ctx, tx, PaymentPosting{
			PaymentID:     intake.PaymentID,
			LedgerEventID: eventID,
			CorrelationID: correlation,
			PostedAt:      now,
		}); insErr != nil {
			return insErr
		}

		env, envErr := events.NewEnvelope(events.SchemaPaymentPosted, correlation, "", PostedPayload{
			PaymentID:     intake.PaymentID,
			LoanID:        intake.LoanID,
			LedgerEventID: eventID,
			AmountMinor:   intake.AmountMinor,
			CorrelationID: correlation,
		})
		if envErr != nil {
			return envErr
		}
		entry, entryErr := events.NewOutboxEntry(intake.PaymentID, events.TopicPaymentsEvents, env)
		if entryErr != nil {
			return entryErr
		}
		return s.outbox.Insert(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateCorrelation) {
			s.logger.Info("payment already posted", "payment_id", paymentID, "correlation_id", correlation)
			return nil
		}
		if errors.Is(err, ledger.ErrUnbalanced) {
			return s.fail(ctx, intake, err)
		}
		return err
	}

	if PaysOffPrincipal(outstanding, allocations) {
		if err := s.statuses.UpdateStatus(ctx, intake.LoanID, loan.StatusPaidOff, now); err != nil {
			// The posting is committed; the status catches up on the next
			// payoff-detecting pass.
			s.logger.Warn("paid-off status update failed", "loan_id", intake.LoanID, "error", err)
		} else {
			s.logger.Info("loan paid off", "loan_id", intake.LoanID, "payment_id", intake.PaymentID)
		}
	}

	s.logger.Info("payment posted",
		"payment_id", intake.PaymentID,
		"loan_id", intake.LoanID,
		"amount_minor", intake.AmountMinor,
		"allocations", len(allocations),
	)
	return nil
}

// fail records a terminal posting failure for downstream consumers, then
// drops the message from the pipeline. If the failure event cannot be
// written the raw error is returned so the broker redelivers.
func (s *Poster) fail(ctx context.Context, intake PaymentIntake, cause error) error {
	correlation := CorrelationID(intake.LoanID, intake.GatewayTxnID)
	env, err := events.NewEnvelope(events.SchemaPaymentFailed, correlation, "", FailedPayload{
		PaymentID: intake.PaymentID,
		LoanID:    intake.LoanID,
		Reason:    cause.Error(),
	})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(intake.PaymentID, events.TopicPaymentsEvents, env)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, s.pool, entry); err != nil {
		return err
	}

	s.logger.Error("payment posting failed",
		"payment_id", intake.PaymentID,
		"loan_id", intake.LoanID,
		"error", cause,
	)
	return kafka.Permanent(cause)
}

// PaysOffPrincipal reports whether the allocation retires the full
// outstanding principal.
func PaysOffPrincipal(outstanding loan.Outstanding, allocations []loan.Allocation) bool {
	due := outstanding[loan.BucketPrincipal]
	if due <= 0 {
		return false
	}
	for _, a := range allocations {
		if a.Bucket == loan.BucketPrincipal {
			return a.AmountMinor == due
		}
	}
	return false
}

// ComputeOutstanding builds the waterfall dues. Fees and principal come from
// ledger-derived balances, current interest from the latest due schedule row,
// past-due interest and escrow from their engines.
func ComputeOutstanding(balances ledger.Balances, currentRow *loan.ScheduleRow, pastDueInterest, escrowDue int64) loan.Outstanding {
	out := loan.Outstanding{}
	if balances.FeesReceivable > 0 {
		out[loan.BucketFeesDue] = balances.FeesReceivable
	}
	if pastDueInterest > 0 {
		out[loan.BucketInterestPastDue] = pastDueInterest
	}
	if currentRow != nil && currentRow.InterestMinor > 0 {
		out[loan.BucketInterestCurrent] = currentRow.InterestMinor
	}
	if escrowDue > 0 {
		out[loan.BucketEscrow] = escrowDue
	}
	if balances.Principal > 0 {
		out[loan.BucketPrincipal] = balances.Principal
	}
	return out
}
