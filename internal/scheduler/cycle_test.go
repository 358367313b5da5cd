package scheduler_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/internal/scheduler"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

type fakeLister struct {
	loans []loan.Loan
}

func (f *fakeLister) ListActive(context.Context) ([]loan.Loan, error) {
	return f.loans, nil
}

type fakeOutbox struct {
	entries []events.OutboxEntry
}

func (f *fakeOutbox) InsertOutbox(_ context.Context, entry events.OutboxEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func testLoans(n int) []loan.Loan {
	out := make([]loan.Loan, n)
	for i := range out {
		out[i] = loan.Loan{ID: uuid.New()}
	}
	return out
}

func decodeTask(t *testing.T, entry events.OutboxEntry) scheduler.TaskPayload {
	t.Helper()
	env, err := events.DecodeEnvelope(entry.Payload)
	require.NoError(t, err)
	require.Equal(t, events.SchemaServicingTask, env.Schema)
	var task scheduler.TaskPayload
	require.NoError(t, env.DecodePayload(&task))
	return task
}

func TestRunCycle_FansOutDailyTasks(t *testing.T) {
	lister := &fakeLister{loans: testLoans(2)}
	outbox := &fakeOutbox{}
	cycle := scheduler.NewCycle(lister, outbox, time.Hour, slog.Default())

	asOf := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	count, err := cycle.RunCycle(context.Background(), asOf)
	require.NoError(t, err)

	// Six daily tasks per loan plus one plan sweep.
	assert.Equal(t, 13, count)
	require.Len(t, outbox.entries, 13)

	for _, entry := range outbox.entries {
		assert.Equal(t, events.TopicServicingCycle, entry.Topic)
		task := decodeTask(t, entry)
		assert.Equal(t, "2025-06-15", task.AsOfDate)
	}

	first := decodeTask(t, outbox.entries[0])
	assert.Equal(t, scheduler.TaskInterestAccrual, first.Kind)
	assert.Equal(t, lister.loans[0].ID, first.LoanID)

	sweep := decodeTask(t, outbox.entries[12])
	assert.Equal(t, scheduler.TaskPlanSweep, sweep.Kind)
	assert.Equal(t, uuid.Nil, sweep.LoanID)
}

func TestRunCycle_MonthlyEscrowAnalysis(t *testing.T) {
	lister := &fakeLister{loans: testLoans(1)}
	outbox := &fakeOutbox{}
	cycle := scheduler.NewCycle(lister, outbox, time.Hour, slog.Default())

	firstOfMonth := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	count, err := cycle.RunCycle(context.Background(), firstOfMonth)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	kinds := make(map[scheduler.TaskKind]bool)
	for _, entry := range outbox.entries {
		kinds[decodeTask(t, entry).Kind] = true
	}
	assert.True(t, kinds[scheduler.TaskEscrowAnalysis])
}

func TestRunCycle_NoLoans(t *testing.T) {
	outbox := &fakeOutbox{}
	cycle := scheduler.NewCycle(&fakeLister{}, outbox, time.Hour, slog.Default())

	count, err := cycle.RunCycle(context.Background(),
		time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Only the plan sweep goes out.
	assert.Equal(t, 1, count)
	require.Len(t, outbox.entries, 1)
	assert.Equal(t, scheduler.TaskPlanSweep, decodeTask(t, outbox.entries[0]).Kind)
}

func TestCycle_StartStopStatus(t *testing.T) {
	cycle := scheduler.NewCycle(&fakeLister{}, &fakeOutbox{}, time.Hour, slog.Default())

	assert.False(t, cycle.Status().Running)

	cycle.Start(context.Background())
	assert.True(t, cycle.Status().Running)

	// A second start while running is a no-op.
	cycle.Start(context.Background())
	assert.True(t, cycle.Status().Running)

	cycle.Stop()
	assert.False(t, cycle.Status().Running)
	cycle.Stop()
	assert.False(t, cycle.Status().Running)
}
