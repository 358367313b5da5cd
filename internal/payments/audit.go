package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
)

// Audit journals every envelope the dispatcher mirrors to the audit topic.
// The journal is append-only and deduped by message id, so replays are
// harmless.
type Audit struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAudit(pool *pgxpool.Pool, logger *slog.Logger) *Audit {
	return &Audit{pool: pool, logger: logger}
}

// Handler adapts the journal to a broker consumer. Envelopes that do not
// decode are permanent failures.
func (a *Audit) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.DecodeEnvelope(msg.Value)
		if err != nil {
			return kafka.Permanent(err)
		}
		return a.Record(ctx, env, msg.Value)
	}
}

// Record appends one envelope to the journal.
func (a *Audit) Record(ctx context.Context, env events.Envelope, raw []byte) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_log (message_id, schema, correlation_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (message_id) DO NOTHING
	`, env.MessageID, env.Schema, env.CorrelationID, raw)
	if err != nil {
		return fmt.Errorf("insert audit log entry: %w", err)
	}
	return nil
}
