package reconcile

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
)

// StatementMessage is the raw ingress format upstream file movers publish.
// Content is base64 so binary-ish statement files survive JSON transport.
type StatementMessage struct {
	Format     string `json:"format"`
	ContentB64 string `json:"content_b64"`
}

// Consumer adapts statement ingestion to the broker: each message is one
// statement file, ingested and immediately auto-matched.
type Consumer struct {
	svc    *Service
	logger *slog.Logger
}

const autoMatchBatch = 500

func NewConsumer(svc *Service, logger *slog.Logger) *Consumer {
	return &Consumer{svc: svc, logger: logger}
}

// Handler decodes the statement message. Malformed messages and duplicate
// files are acked without retry.
func (c *Consumer) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var sm StatementMessage
		if err := json.Unmarshal(msg.Value, &sm); err != nil {
			return kafka.Permanent(fmt.Errorf("decode statement message: %w", err))
		}
		content, err := base64.StdEncoding.DecodeString(sm.ContentB64)
		if err != nil {
			return kafka.Permanent(fmt.Errorf("decode statement content: %w", err))
		}

		file, err := c.svc.IngestStatement(ctx, StatementFormat(sm.Format), content)
		if errors.Is(err, ErrDuplicateStatement) {
			c.logger.Info("duplicate statement dropped", slog.String("format", sm.Format))
			return nil
		}
		if errors.Is(err, ErrBadStatement) {
			return kafka.Permanent(err)
		}
		if err != nil {
			return err
		}

		if err := c.svc.AutoMatch(ctx, autoMatchBatch); err != nil {
			return err
		}
		c.logger.Info("statement processed",
			slog.String("statement_id", file.ID.String()),
			slog.Int("txn_count", file.TxnCount))
		return nil
	}
}
