//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/payments"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

type recordedPublish struct {
	topic   string
	payload []byte
}

// capturePublisher records publishes; topics in failTopics error instead.
type capturePublisher struct {
	published  []recordedPublish
	failTopics map[string]bool
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _, payload []byte) error {
	if p.failTopics[topic] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, recordedPublish{topic: topic, payload: payload})
	return nil
}

func newEntry(t *testing.T, topic, correlationID string) events.OutboxEntry {
	t.Helper()
	env, err := events.NewEnvelope(events.SchemaPaymentValidated, correlationID, "", map[string]string{"k": "v"})
	require.NoError(t, err)
	entry, err := events.NewOutboxEntry(uuid.New(), topic, env)
	require.NoError(t, err)
	return entry
}

func TestOutboxDispatcher_PublishesAndMirrors(t *testing.T) {
	pool := setupTestDB(t)
	repo := payments.NewOutboxRepo(pool)
	ctx := context.Background()

	first := newEntry(t, events.TopicPaymentsSaga, "payment:loan:17:gw:txn1")
	second := newEntry(t, events.TopicPaymentsEvents, "payment:loan:17:gw:txn2")
	require.NoError(t, repo.Insert(ctx, pool, first))
	require.NoError(t, repo.Insert(ctx, pool, second))

	pub := &capturePublisher{}
	d := payments.NewDispatcher(repo, pub, 10, time.Second, slog.Default())

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Each entry is published to its own topic and mirrored to the audit topic.
	require.Len(t, pub.published, 4)
	assert.Equal(t, events.TopicPaymentsSaga, pub.published[0].topic)
	assert.Equal(t, events.TopicPaymentsAudit, pub.published[1].topic)
	assert.Equal(t, pub.published[0].payload, pub.published[1].payload)
	assert.Equal(t, events.TopicPaymentsEvents, pub.published[2].topic)
	assert.Equal(t, events.TopicPaymentsAudit, pub.published[3].topic)

	// Published rows do not come back.
	n, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxDispatcher_RetriesThenParks(t *testing.T) {
	pool := setupTestDB(t)
	repo := payments.NewOutboxRepo(pool)
	ctx := context.Background()

	entry := newEntry(t, events.TopicPaymentsSaga, "payment:loan:17:gw:txn3")
	require.NoError(t, repo.Insert(ctx, pool, entry))

	pub := &capturePublisher{failTopics: map[string]bool{events.TopicPaymentsSaga: true}}
	d := payments.NewDispatcher(repo, pub, 10, time.Second, slog.Default())

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var attempts int
	var parked bool
	var lastError string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT attempt_count, parked, last_error FROM outbox WHERE id = $1", entry.ID,
	).Scan(&attempts, &parked, &lastError))
	assert.Equal(t, 1, attempts)
	assert.False(t, parked)
	assert.Contains(t, lastError, "broker unavailable")

	// Exhaust the remaining attempts; the backoff gate is cleared between
	// ticks so each tick burns one attempt.
	for i := 0; i < 4; i++ {
		_, err := pool.Exec(ctx, "UPDATE outbox SET next_retry_at = NOW() - INTERVAL '1 second' WHERE id = $1", entry.ID)
		require.NoError(t, err)
		_, err = d.Tick(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, pool.QueryRow(ctx,
		"SELECT attempt_count, parked FROM outbox WHERE id = $1", entry.ID,
	).Scan(&attempts, &parked))
	assert.Equal(t, 5, attempts)
	assert.True(t, parked)

	// Parked entries are invisible to further ticks.
	_, err = pool.Exec(ctx, "UPDATE outbox SET next_retry_at = NOW() - INTERVAL '1 second' WHERE id = $1", entry.ID)
	require.NoError(t, err)
	n, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := repo.ParkedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOutboxDispatcher_AuditMirrorFailureDoesNotBlock(t *testing.T) {
	pool := setupTestDB(t)
	repo := payments.NewOutboxRepo(pool)
	ctx := context.Background()

	entry := newEntry(t, events.TopicPaymentsSaga, "payment:loan:17:gw:txn4")
	require.NoError(t, repo.Insert(ctx, pool, entry))

	pub := &capturePublisher{failTopics: map[string]bool{events.TopicPaymentsAudit: true}}
	d := payments.NewDispatcher(repo, pub, 10, time.Second, slog.Default())

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT published_at FROM outbox WHERE id = $1", entry.ID,
	).Scan(&publishedAt))
	require.NotNil(t, publishedAt, fmt.Sprintf("entry %s should be published", entry.ID))
}
