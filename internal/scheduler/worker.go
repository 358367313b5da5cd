package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/collections"
	"github.com/cschwartz85032/loanserve-sub003/internal/escrow"
	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// ScheduleReader supplies the loan's active amortization plan.
type ScheduleReader interface {
	ActiveSchedule(ctx context.Context, loanID uuid.UUID) ([]loan.ScheduleRow, error)
}

// SnapshotReader supplies the latest delinquency state for late fees.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*collections.Snapshot, error)
}

// LoanReader loads the loan for per-loan fee overrides.
type LoanReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (loan.Loan, error)
}

// PolicyReader loads the product policy governing late fees.
type PolicyReader interface {
	FindPolicy(ctx context.Context, productCode string) (loan.ProductPolicy, error)
}

// Worker executes servicing cycle tasks delivered back over the broker.
type Worker struct {
	schedules  ScheduleReader
	snapshots  SnapshotReader
	loans      LoanReader
	policies   PolicyReader
	ledgerSvc  *ledger.Service
	forecaster *escrow.Forecaster
	disburser  *escrow.Disburser
	analyzer   *escrow.Analyzer
	tracker    *collections.Tracker
	assessor   *collections.Assessor
	plans      *collections.PlanManager
	logger     *slog.Logger
}

func NewWorker(
	schedules ScheduleReader,
	snapshots SnapshotReader,
	loans LoanReader,
	policies PolicyReader,
	ledgerSvc *ledger.Service,
	forecaster *escrow.Forecaster,
	disburser *escrow.Disburser,
	analyzer *escrow.Analyzer,
	tracker *collections.Tracker,
	assessor *collections.Assessor,
	plans *collections.PlanManager,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		schedules:  schedules,
		snapshots:  snapshots,
		loans:      loans,
		policies:   policies,
		ledgerSvc:  ledgerSvc,
		forecaster: forecaster,
		disburser:  disburser,
		analyzer:   analyzer,
		tracker:    tracker,
		assessor:   assessor,
		plans:      plans,
		logger:     logger.With(slog.String("component", "cycle_worker")),
	}
}

// Handler adapts the worker to a broker consumer. Unknown task kinds are
// permanent failures.
func (w *Worker) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.DecodeEnvelope(msg.Value)
		if err != nil {
			return kafka.Permanent(err)
		}
		if env.Schema != events.SchemaServicingTask {
			return nil
		}
		var task TaskPayload
		if err := env.DecodePayload(&task); err != nil {
			return kafka.Permanent(err)
		}
		return w.Execute(ctx, task)
	}
}

// Execute runs one task. Every task is idempotent for a given day, so
// broker redelivery is harmless.
func (w *Worker) Execute(ctx context.Context, task TaskPayload) error {
	asOf, err := money.ParseDate(task.AsOfDate)
	if err != nil {
		return kafka.Permanent(err)
	}

	switch task.Kind {
	case TaskInterestAccrual:
		return w.accrueInterest(ctx, task.LoanID, asOf)
	case TaskEscrowRebuild:
		_, err := w.forecaster.Rebuild(ctx, task.LoanID, asOf)
		return err
	case TaskEscrowSchedule:
		_, err := w.disburser.Schedule(ctx, task.LoanID, asOf)
		return err
	case TaskEscrowPost:
		_, err := w.disburser.PostDue(ctx, task.LoanID, asOf)
		return err
	case TaskEscrowAnalysis:
		return w.analyzeEscrow(ctx, task.LoanID, asOf)
	case TaskDelinquencySnapshot:
		_, err := w.tracker.Run(ctx, task.LoanID, asOf)
		return err
	case TaskLateFee:
		return w.assessLateFee(ctx, task.LoanID, asOf)
	case TaskPlanSweep:
		_, err := w.plans.SweepDefaults(ctx, asOf)
		return err
	default:
		return kafka.Permanent(fmt.Errorf("unknown servicing task kind %q", task.Kind))
	}
}

// accrueInterest posts the accrual for the latest period that has come due.
// The correlation id carries the due date, so a redelivered task lands on
// the duplicate check and acks.
func (w *Worker) accrueInterest(ctx context.Context, loanID uuid.UUID, asOf time.Time) error {
	schedule, err := w.schedules.ActiveSchedule(ctx, loanID)
	if err != nil {
		return err
	}

	var due *loan.ScheduleRow
	for i := range schedule {
		if !schedule[i].DueDate.After(asOf) {
			due = &schedule[i]
		}
	}
	if due == nil || due.InterestMinor <= 0 {
		return nil
	}

	correlation := fmt.Sprintf("accrual:loan:%s:due:%s", loanID, money.FormatDate(due.DueDate))
	req := ledger.InterestAccrual(loanID, due.DueDate, correlation, "USD", due.InterestMinor)
	_, err = w.ledgerSvc.PostEvent(ctx, req)
	if errors.Is(err, ledger.ErrDuplicateCorrelation) {
		return nil
	}
	if err == nil {
		w.logger.Info("interest accrued",
			slog.String("loan_id", loanID.String()),
			slog.String("due_date", money.FormatDate(due.DueDate)),
			slog.Int64("interest_minor", due.InterestMinor))
	}
	return err
}

func (w *Worker) analyzeEscrow(ctx context.Context, loanID uuid.UUID, asOf time.Time) error {
	balances, err := w.ledgerSvc.LatestBalances(ctx, loanID)
	if err != nil {
		return err
	}
	_, err = w.analyzer.Run(ctx, loanID, balances.EscrowLiability, asOf)
	return err
}

// assessLateFee charges the fee for the earliest unpaid period once its
// grace window lapses, under the loan's product policy. The assessor
// dedupes per period.
func (w *Worker) assessLateFee(ctx context.Context, loanID uuid.UUID, asOf time.Time) error {
	snap, err := w.snapshots.LatestSnapshot(ctx, loanID, asOf)
	if err != nil {
		return err
	}
	if snap == nil || snap.EarliestUnpaidDue == nil {
		return nil
	}

	l, err := w.loans.FindByID(ctx, loanID)
	if err != nil {
		return err
	}
	policy, err := w.policies.FindPolicy(ctx, l.ProductCode)
	if errors.Is(err, loan.ErrPolicyNotFound) {
		policy = loan.DefaultProductPolicy(l.ProductCode)
	} else if err != nil {
		return err
	}
	feePolicy := loan.EffectiveFeePolicy(policy, l)

	schedule, err := w.schedules.ActiveSchedule(ctx, loanID)
	if err != nil {
		return err
	}
	var row *loan.ScheduleRow
	for i := range schedule {
		if schedule[i].DueDate.Equal(*snap.EarliestUnpaidDue) {
			row = &schedule[i]
			break
		}
	}
	if row == nil {
		return nil
	}

	unpaid := snap.TotalScheduledMinor - snap.TotalAppliedMinor
	_, err = w.assessor.Assess(ctx, loanID, feePolicy, *row, unpaid, asOf)
	return err
}
