package collections

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EscrowTargetReader supplies the loan's current monthly escrow target.
type EscrowTargetReader interface {
	MonthlyTarget(ctx context.Context, loanID uuid.UUID) (int64, error)
}

// Dues answers the poster's outstanding-amount questions from delinquency
// snapshots and the escrow analysis.
type Dues struct {
	repo      *Repo
	schedules ScheduleReader
	escrow    EscrowTargetReader
}

func NewDues(repo *Repo, schedules ScheduleReader, escrow EscrowTargetReader) *Dues {
	return &Dues{repo: repo, schedules: schedules, escrow: escrow}
}

// PastDueInterest is the interest of missed periods per the latest snapshot,
// excluding the current period.
func (d *Dues) PastDueInterest(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error) {
	snap, err := d.repo.LatestSnapshot(ctx, loanID, asOf)
	if err != nil {
		return 0, err
	}
	if snap == nil || snap.EarliestUnpaidDue == nil {
		return 0, nil
	}
	schedule, err := d.schedules.ActiveSchedule(ctx, loanID)
	if err != nil {
		return 0, err
	}
	return PastDueInterest(schedule, snap.EarliestUnpaidDue, asOf), nil
}

// EscrowDue is the monthly escrow target from the latest analysis, zero when
// the loan has no escrow.
func (d *Dues) EscrowDue(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int64, error) {
	if d.escrow == nil {
		return 0, nil
	}
	return d.escrow.MonthlyTarget(ctx, loanID)
}
