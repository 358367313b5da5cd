package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

const (
	// maxPublishAttempts parks an entry for operator review once exceeded.
	maxPublishAttempts = 5
	// maxRetryDelay caps the exponential publish backoff.
	maxRetryDelay = 60 * time.Second
)

// OutboxRepo stores pending outbound envelopes. Inserts ride the stage's
// transaction; the dispatcher reads and updates rows on its own connection.
type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Insert writes an outbox entry inside the caller's transaction.
func (r *OutboxRepo) Insert(ctx context.Context, q pgpkg.Querier, entry events.OutboxEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, event_id, topic, payload, created_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, entry.ID, entry.EventID, entry.Topic, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchDue returns unpublished, unparked entries whose retry time has passed,
// oldest first.
func (r *OutboxRepo) FetchDue(ctx context.Context, limit int) ([]events.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, topic, payload, created_at, published_at,
		       attempt_count, next_retry_at, COALESCE(last_error, '')
		FROM outbox
		WHERE published_at IS NULL
		  AND NOT parked
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox entries: %w", err)
	}
	defer rows.Close()

	var out []events.OutboxEntry
	for rows.Next() {
		var e events.OutboxEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Payload, &e.CreatedAt,
			&e.PublishedAt, &e.AttemptCount, &e.NextRetryAt, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps the entry after a confirmed publish.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET published_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// MarkFailed records a failed publish attempt, scheduling the next retry or
// parking the entry once attempts are exhausted.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempt int, cause error) error {
	parked := attempt >= maxPublishAttempts
	next := time.Now().UTC().Add(retryDelay(attempt))
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt_count = $2, next_retry_at = $3, last_error = $4, parked = $5
		WHERE id = $1
	`, id, attempt, next, cause.Error(), parked)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// ParkedCount reports entries awaiting operator action.
func (r *OutboxRepo) ParkedCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE parked`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count parked outbox entries: %w", err)
	}
	return n, nil
}

// retryDelay is 2^attempt seconds capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
