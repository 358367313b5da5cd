package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// LoanReader loads loans for validation and posting.
type LoanReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (loan.Loan, error)
}

// ScheduleReader loads the active amortization plan.
type ScheduleReader interface {
	ActiveSchedule(ctx context.Context, loanID uuid.UUID) ([]loan.ScheduleRow, error)
}

// Validator is the second pipeline stage. It applies the acceptance rules in
// order and records the first failure as the payment's reason.
type Validator struct {
	pool      *pgxpool.Pool
	repo      *Repo
	outbox    *OutboxRepo
	loans     LoanReader
	schedules ScheduleReader
	logger    *slog.Logger
}

func NewValidator(pool *pgxpool.Pool, repo *Repo, outbox *OutboxRepo, loans LoanReader, schedules ScheduleReader, logger *slog.Logger) *Validator {
	return &Validator{pool: pool, repo: repo, outbox: outbox, loans: loans, schedules: schedules, logger: logger}
}

// Handler adapts the stage to a broker consumer.
func (s *Validator) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.DecodeEnvelope(msg.Value)
		if err != nil {
			return kafka.Permanent(err)
		}
		if env.Schema != events.SchemaPaymentReceived {
			return nil
		}
		var payload ReceivedPayload
		if err := env.DecodePayload(&payload); err != nil {
			return kafka.Permanent(err)
		}
		return s.Handle(ctx, payload.PaymentID)
	}
}

// Handle validates the intake row and emits validated or failed via outbox.
func (s *Validator) Handle(ctx context.Context, paymentID uuid.UUID) error {
	intake, err := s.repo.FindIntake(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrIntakeNotFound) {
			return kafka.Permanent(err)
		}
		return err
	}

	l, loanErr := s.loans.FindByID(ctx, intake.LoanID)
	if loanErr != nil && !errors.Is(loanErr, loan.ErrLoanNotFound) {
		return loanErr
	}

	var schedule []loan.ScheduleRow
	if loanErr == nil {
		schedule, err = s.schedules.ActiveSchedule(ctx, intake.LoanID)
		if err != nil {
			return err
		}
	}

	verdict := Evaluate(l, loanErr == nil, intake, schedule, time.Now().UTC())

	return pgpkg.WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.repo.InsertValidation(ctx, tx, verdict); err != nil {
			return err
		}

		correlation := CorrelationID(intake.LoanID, intake.GatewayTxnID)
		var env events.Envelope
		var topic string
		if verdict.Status == ValidationPassed {
			topic = events.TopicPaymentsSaga
			env, err = events.NewEnvelope(events.SchemaPaymentValidated, correlation, "", ValidatedPayload{
				PaymentID:   intake.PaymentID,
				LoanID:      intake.LoanID,
				PaymentType: verdict.PaymentType,
			})
		} else {
			topic = events.TopicPaymentsEvents
			env, err = events.NewEnvelope(events.SchemaPaymentFailed, correlation, "", FailedPayload{
				PaymentID:  intake.PaymentID,
				LoanID:     intake.LoanID,
				Reason:     verdict.Reason,
				RetryAfter: verdict.RetryAfter,
			})
		}
		if err != nil {
			return err
		}
		entry, err := events.NewOutboxEntry(intake.PaymentID, topic, env)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, entry); err != nil {
			return err
		}

		s.logger.Info("payment validated",
			"payment_id", intake.PaymentID,
			"status", verdict.Status,
			"reason", verdict.Reason,
		)
		return nil
	})
}

// Evaluate applies the validation rules in order and returns the verdict.
// The first failing rule wins; later rules are not consulted.
func Evaluate(l loan.Loan, loanFound bool, intake PaymentIntake, schedule []loan.ScheduleRow, now time.Time) PaymentValidation {
	v := PaymentValidation{PaymentID: intake.PaymentID, ValidatedAt: now}

	fail := func(reason string) PaymentValidation {
		v.Status = ValidationFailed
		v.Reason = reason
		return v
	}

	if !loanFound {
		return fail("loan not found")
	}
	if l.Status.Terminal() {
		return fail(fmt.Sprintf("loan status %s does not accept payments", l.Status))
	}
	if intake.AmountMinor <= 0 {
		return fail("amount must be positive")
	}
	if intake.Currency != "USD" {
		return fail(fmt.Sprintf("unsupported currency %s", intake.Currency))
	}
	today := now.Truncate(24 * time.Hour)
	if intake.EffectiveDate.After(today) {
		v.Status = ValidationFailed
		v.Reason = "effective date is in the future"
		v.RetryAfter = int64(intake.EffectiveDate.Sub(today) / time.Second)
		return v
	}

	v.Status = ValidationPassed
	if row := latestDueRow(schedule, intake.EffectiveDate); row != nil {
		switch {
		case intake.AmountMinor == row.TotalPaymentMinor:
			v.PaymentType = PaymentScheduled
		case intake.AmountMinor > row.TotalPaymentMinor:
			v.PaymentType = PaymentOverpayment
		default:
			v.PaymentType = PaymentPartial
		}
	}
	return v
}

// latestDueRow is the schedule row with the greatest due date on or before
// asOf, or nil when none has come due yet.
func latestDueRow(schedule []loan.ScheduleRow, asOf time.Time) *loan.ScheduleRow {
	var found *loan.ScheduleRow
	for i := range schedule {
		if schedule[i].DueDate.After(asOf) {
			break
		}
		found = &schedule[i]
	}
	return found
}
