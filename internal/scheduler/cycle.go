// Package scheduler fans the daily servicing cycle out as per-loan task
// messages and executes them as they come back through the broker.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// TaskKind names one servicing cycle step for one loan.
type TaskKind string

const (
	TaskInterestAccrual     TaskKind = "interest_accrual"
	TaskEscrowRebuild       TaskKind = "escrow_rebuild"
	TaskEscrowSchedule      TaskKind = "escrow_schedule"
	TaskEscrowPost          TaskKind = "escrow_post"
	TaskEscrowAnalysis      TaskKind = "escrow_analysis"
	TaskDelinquencySnapshot TaskKind = "delinquency_snapshot"
	TaskLateFee             TaskKind = "late_fee"
	TaskPlanSweep           TaskKind = "plan_sweep"
)

// dailyTasks run for every active loan on every cycle, in dependency order:
// the delinquency snapshot must exist before late fees are considered.
var dailyTasks = []TaskKind{
	TaskInterestAccrual,
	TaskEscrowRebuild,
	TaskEscrowSchedule,
	TaskEscrowPost,
	TaskDelinquencySnapshot,
	TaskLateFee,
}

// TaskPayload is the servicing.task.v1 payload.
type TaskPayload struct {
	Kind     TaskKind  `json:"kind"`
	LoanID   uuid.UUID `json:"loan_id"`
	AsOfDate string    `json:"as_of_date"`
}

// LoanLister supplies the loans in the cycle.
type LoanLister interface {
	ListActive(ctx context.Context) ([]loan.Loan, error)
}

// OutboxWriter persists fan-out entries for the dispatcher.
type OutboxWriter interface {
	InsertOutbox(ctx context.Context, entry events.OutboxEntry) error
}

// Status reports where the scheduler is in its loop.
type Status struct {
	Running      bool
	LastCycleAt  time.Time
	LastTaskFan  int
	LastCycleErr string
}

// Cycle publishes the daily servicing fan-out. One plan-sweep task per cycle
// covers all loans; the rest are per loan.
type Cycle struct {
	loans    LoanLister
	outbox   OutboxWriter
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

func NewCycle(loans LoanLister, outbox OutboxWriter, interval time.Duration, logger *slog.Logger) *Cycle {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Cycle{
		loans:    loans,
		outbox:   outbox,
		interval: interval,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Start launches the cycle loop. A second Start while running is a no-op.
func (c *Cycle) Start(ctx context.Context) {
	c.mu.Lock()
	if c.status.Running {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.status.Running = true
	c.mu.Unlock()

	go c.loop(runCtx)
}

// Stop halts the loop. Safe to call when not running.
func (c *Cycle) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status.Running = false
}

// Status returns a copy of the current loop state.
func (c *Cycle) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Cycle) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Cycle) runOnce(ctx context.Context) {
	count, err := c.RunCycle(ctx, time.Now().UTC())

	c.mu.Lock()
	c.status.LastCycleAt = time.Now().UTC()
	c.status.LastTaskFan = count
	c.status.LastCycleErr = ""
	if err != nil {
		c.status.LastCycleErr = err.Error()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("servicing cycle failed", slog.String("error", err.Error()))
	}
}

// RunCycle fans tasks out for every active loan as of the given day. Escrow
// analysis joins the fan-out on the first of each month.
func (c *Cycle) RunCycle(ctx context.Context, asOf time.Time) (int, error) {
	loans, err := c.loans.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	kinds := dailyTasks
	if asOf.Day() == 1 {
		kinds = append(append([]TaskKind(nil), dailyTasks...), TaskEscrowAnalysis)
	}

	count := 0
	for _, l := range loans {
		for _, kind := range kinds {
			if err := c.publishTask(ctx, kind, l.ID, asOf); err != nil {
				return count, err
			}
			count++
		}
	}
	if err := c.publishTask(ctx, TaskPlanSweep, uuid.Nil, asOf); err != nil {
		return count, err
	}
	count++

	c.logger.Info("servicing cycle fanned out",
		slog.Int("loans", len(loans)),
		slog.Int("tasks", count),
		slog.String("as_of", money.FormatDate(asOf)))
	return count, nil
}

func (c *Cycle) publishTask(ctx context.Context, kind TaskKind, loanID uuid.UUID, asOf time.Time) error {
	correlation := fmt.Sprintf("cycle:%s:%s:%s", money.FormatDate(asOf), kind, loanID)
	env, err := events.NewEnvelope(events.SchemaServicingTask, correlation, "", TaskPayload{
		Kind:     kind,
		LoanID:   loanID,
		AsOfDate: money.FormatDate(asOf),
	})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(loanID, events.TopicServicingCycle, env)
	if err != nil {
		return err
	}
	return c.outbox.InsertOutbox(ctx, entry)
}
