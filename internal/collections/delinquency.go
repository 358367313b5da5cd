// Package collections runs daily delinquency tracking, late-fee assessment,
// payment plans, and foreclosure milestones.
package collections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// DelinquencyBucket is the days-past-due band of a loan.
type DelinquencyBucket string

const (
	BucketCurrent   DelinquencyBucket = "current"
	BucketDPD1To29  DelinquencyBucket = "dpd_1_29"
	BucketDPD30To59 DelinquencyBucket = "dpd_30_59"
	BucketDPD60To89 DelinquencyBucket = "dpd_60_89"
	BucketDPD90Plus DelinquencyBucket = "dpd_90_plus"
)

// BucketFor maps days past due to its band.
func BucketFor(dpd int) DelinquencyBucket {
	switch {
	case dpd <= 0:
		return BucketCurrent
	case dpd < 30:
		return BucketDPD1To29
	case dpd < 60:
		return BucketDPD30To59
	case dpd < 90:
		return BucketDPD60To89
	default:
		return BucketDPD90Plus
	}
}

// Snapshot is one day's delinquency state for a loan.
type Snapshot struct {
	LoanID              uuid.UUID
	AsOfDate            time.Time
	EarliestUnpaidDue   *time.Time
	DaysPastDue         int
	Bucket              DelinquencyBucket
	TotalScheduledMinor int64
	TotalAppliedMinor   int64
}

// AppliedReader sums posted payment amounts for a loan through a date.
type AppliedReader interface {
	AppliedThrough(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error)
}

// ScheduleReader loads the active amortization plan.
type ScheduleReader interface {
	ActiveSchedule(ctx context.Context, loanID uuid.UUID) ([]loan.ScheduleRow, error)
}

// StatusWriter moves a loan through its servicing lifecycle.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status loan.Status, now time.Time) error
}

// ComputeDelinquency walks the schedule and finds the earliest due date whose
// cumulative scheduled total exceeds the cumulative applied total.
func ComputeDelinquency(schedule []loan.ScheduleRow, appliedMinor, assessedFeesMinor int64, asOf time.Time) Snapshot {
	snap := Snapshot{
		AsOfDate:          asOf,
		TotalAppliedMinor: appliedMinor,
		Bucket:            BucketCurrent,
	}

	var cumScheduled int64 = assessedFeesMinor
	for i := range schedule {
		row := schedule[i]
		if row.DueDate.After(asOf) {
			break
		}
		cumScheduled += row.TotalPaymentMinor
		if snap.EarliestUnpaidDue == nil && cumScheduled > appliedMinor {
			due := row.DueDate
			snap.EarliestUnpaidDue = &due
		}
	}
	snap.TotalScheduledMinor = cumScheduled

	if snap.EarliestUnpaidDue != nil {
		dpd := int(asOf.Sub(*snap.EarliestUnpaidDue).Hours() / 24)
		if dpd < 0 {
			dpd = 0
		}
		snap.DaysPastDue = dpd
		snap.Bucket = BucketFor(dpd)
	}
	return snap
}

// PastDueInterest sums the interest portion of unpaid periods before asOf,
// excluding the current period (the poster takes that from the schedule).
func PastDueInterest(schedule []loan.ScheduleRow, earliestUnpaid *time.Time, asOf time.Time) int64 {
	if earliestUnpaid == nil {
		return 0
	}
	var current *loan.ScheduleRow
	for i := range schedule {
		if schedule[i].DueDate.After(asOf) {
			break
		}
		current = &schedule[i]
	}

	var total int64
	for i := range schedule {
		row := schedule[i]
		if row.DueDate.Before(*earliestUnpaid) || row.DueDate.After(asOf) {
			continue
		}
		if current != nil && row.PeriodNo == current.PeriodNo {
			continue
		}
		total += row.InterestMinor
	}
	return total
}

// Tracker computes and persists daily snapshots, emitting bucket transitions
// and opening foreclosure cases at 90 days past due.
type Tracker struct {
	repo      *Repo
	schedules ScheduleReader
	applied   AppliedReader
	loans     StatusWriter
	logger    *slog.Logger
}

func NewTracker(repo *Repo, schedules ScheduleReader, applied AppliedReader, loans StatusWriter, logger *slog.Logger) *Tracker {
	return &Tracker{repo: repo, schedules: schedules, applied: applied, loans: loans, logger: logger}
}

// Run computes the snapshot for one loan and day.
func (t *Tracker) Run(ctx context.Context, loanID uuid.UUID, asOf time.Time) (Snapshot, error) {
	schedule, err := t.schedules.ActiveSchedule(ctx, loanID)
	if err != nil {
		return Snapshot{}, err
	}
	applied, err := t.applied.AppliedThrough(ctx, loanID, asOf)
	if err != nil {
		return Snapshot{}, err
	}
	fees, err := t.repo.AssessedFeesThrough(ctx, loanID, asOf)
	if err != nil {
		return Snapshot{}, err
	}

	snap := ComputeDelinquency(schedule, applied, fees, asOf)
	snap.LoanID = loanID

	previous, err := t.repo.LatestSnapshotBefore(ctx, loanID, asOf)
	if err != nil {
		return Snapshot{}, err
	}
	if err := t.repo.UpsertSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}

	prevBucket := BucketCurrent
	if previous != nil {
		prevBucket = previous.Bucket
	}
	if snap.Bucket != prevBucket {
		if err := t.bucketChanged(ctx, snap, prevBucket); err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

func (t *Tracker) bucketChanged(ctx context.Context, snap Snapshot, from DelinquencyBucket) error {
	correlation := fmt.Sprintf("delinquency:loan:%s:%s", snap.LoanID, snap.AsOfDate.Format("2006-01-02"))
	env, err := events.NewEnvelope(events.SchemaDelinquencyStatusChanged, correlation, "", map[string]any{
		"loan_id":       snap.LoanID,
		"as_of_date":    snap.AsOfDate.Format("2006-01-02"),
		"from_bucket":   from,
		"to_bucket":     snap.Bucket,
		"days_past_due": snap.DaysPastDue,
	})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(snap.LoanID, events.TopicPaymentsEvents, env)
	if err != nil {
		return err
	}
	if err := t.repo.InsertOutbox(ctx, t.repo.pool, entry); err != nil {
		return err
	}

	t.logger.Info("delinquency bucket changed",
		"loan_id", snap.LoanID,
		"from", from,
		"to", snap.Bucket,
		"days_past_due", snap.DaysPastDue,
	)

	if snap.Bucket == BucketDPD90Plus {
		return t.openForeclosureIfNone(ctx, snap)
	}
	return nil
}

func (t *Tracker) openForeclosureIfNone(ctx context.Context, snap Snapshot) error {
	open, err := t.repo.OpenCase(ctx, snap.LoanID)
	if err != nil {
		return err
	}
	if open != nil {
		return nil
	}

	fc := NewForeclosureCase(snap.LoanID, snap.AsOfDate)
	if err := t.repo.InsertCase(ctx, fc); err != nil {
		return err
	}
	if err := t.loans.UpdateStatus(ctx, snap.LoanID, loan.StatusInForeclosure, time.Now().UTC()); err != nil {
		return err
	}

	env, err := events.NewEnvelope(events.SchemaForeclosureCaseOpened,
		fmt.Sprintf("foreclosure:case:%s", fc.ID), "", map[string]any{
			"case_id":   fc.ID,
			"loan_id":   fc.LoanID,
			"opened_at": fc.OpenedAt.Format("2006-01-02"),
		})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(fc.ID, events.TopicPaymentsEvents, env)
	if err != nil {
		return err
	}
	if err := t.repo.InsertOutbox(ctx, t.repo.pool, entry); err != nil {
		return err
	}

	t.logger.Warn("foreclosure case opened", "case_id", fc.ID, "loan_id", fc.LoanID)
	return nil
}
