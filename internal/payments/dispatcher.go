package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// Dispatcher drains committed outbox entries to the broker. Publish failures
// are retried with exponential backoff per entry; exhausted entries park.
type Dispatcher struct {
	outbox    *OutboxRepo
	publisher events.Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

func NewDispatcher(outbox *OutboxRepo, publisher events.Publisher, batchSize int, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Tick(ctx); err != nil {
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// Tick publishes one batch of due entries in creation order and returns the
// number published.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	entries, err := d.outbox.FetchDue(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, entry := range entries {
		if pubErr := d.publisher.Publish(ctx, entry.Topic, entry.EventID[:], entry.Payload); pubErr != nil {
			attempt := entry.AttemptCount + 1
			if markErr := d.outbox.MarkFailed(ctx, entry.ID, attempt, pubErr); markErr != nil {
				return published, markErr
			}
			d.logger.Warn("outbox publish failed",
				"outbox_id", entry.ID,
				"topic", entry.Topic,
				"attempt", attempt,
				"error", pubErr,
			)
			continue
		}
		if err := d.outbox.MarkPublished(ctx, entry.ID, time.Now().UTC()); err != nil {
			return published, err
		}
		published++

		// Every published envelope is mirrored to the audit journal topic.
		if entry.Topic != events.TopicPaymentsAudit {
			if auditErr := d.publisher.Publish(ctx, events.TopicPaymentsAudit, entry.EventID[:], entry.Payload); auditErr != nil {
				d.logger.Warn("audit mirror publish failed",
					"outbox_id", entry.ID,
					"error", auditErr,
				)
			}
		}
	}

	if published > 0 {
		d.logger.Debug("outbox batch published", "count", published)
	}
	return published, nil
}
