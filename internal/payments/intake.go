package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// Intake is the first pipeline stage. It dedupes raw gateway events by
// idempotency key and hands accepted payments to the validator via outbox.
type Intake struct {
	pool   *pgxpool.Pool
	repo   *Repo
	outbox *OutboxRepo
	logger *slog.Logger
}

func NewIntake(pool *pgxpool.Pool, repo *Repo, outbox *OutboxRepo, logger *slog.Logger) *Intake {
	return &Intake{pool: pool, repo: repo, outbox: outbox, logger: logger}
}

// Handler adapts the stage to a broker consumer. Malformed gateway events are
// permanent failures; they go to the dead-letter topic without retry.
func (s *Intake) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var raw GatewayEvent
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			return kafka.Permanent(fmt.Errorf("decode gateway event: %w", err))
		}
		return s.Handle(ctx, raw)
	}
}

// Handle records the gateway event and emits payment.received.v1. A replayed
// event with a known idempotency key is acked and dropped.
func (s *Intake) Handle(ctx context.Context, raw GatewayEvent) error {
	effectiveDate, err := ParseEffectiveDate(raw.EffectiveDate)
	if err != nil {
		return kafka.Permanent(err)
	}
	if raw.GatewayTxnID == "" {
		return kafka.Permanent(fmt.Errorf("gateway event missing txn id"))
	}

	now := time.Now().UTC()
	intake := PaymentIntake{
		PaymentID:     uuid.New(),
		LoanID:        raw.LoanID,
		GatewayTxnID:  raw.GatewayTxnID,
		AmountMinor:   raw.AmountMinor,
		Currency:      raw.Currency,
		EffectiveDate: effectiveDate,
		Source:        raw.Source,
		IdempotencyKey: IdempotencyKey(raw.LoanID, raw.GatewayTxnID, raw.AmountMinor,
			raw.Currency, raw.EffectiveDate),
		ReceivedAt: now,
	}

	return pgpkg.WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		inserted, err := s.repo.InsertIntake(ctx, tx, intake)
		if err != nil {
			return err
		}
		if !inserted {
			s.logger.Info("duplicate payment dropped",
				"loan_id", raw.LoanID,
				"gateway_txn_id", raw.GatewayTxnID,
			)
			return nil
		}

		env, err := events.NewEnvelope(events.SchemaPaymentReceived,
			CorrelationID(intake.LoanID, intake.GatewayTxnID), "", ReceivedPayload{
				PaymentID:     intake.PaymentID,
				LoanID:        intake.LoanID,
				GatewayTxnID:  intake.GatewayTxnID,
				AmountMinor:   intake.AmountMinor,
				Currency:      intake.Currency,
				EffectiveDate: raw.EffectiveDate,
			})
		if err != nil {
			return err
		}
		entry, err := events.NewOutboxEntry(intake.PaymentID, events.TopicPaymentsValidation, env)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, entry); err != nil {
			return err
		}

		s.logger.Info("payment received",
			"payment_id", intake.PaymentID,
			"loan_id", intake.LoanID,
			"amount_minor", intake.AmountMinor,
		)
		return nil
	})
}
