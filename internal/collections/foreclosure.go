package collections

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
)

// CaseStatus is the state of a foreclosure case.
type CaseStatus string

const (
	CaseOpen   CaseStatus = "open"
	CaseClosed CaseStatus = "closed"
)

// Milestone names the stages a foreclosure moves through. Each is recorded at
// most once per case.
type Milestone string

const (
	MilestoneBreachLetterSent  Milestone = "breach_letter_sent"
	MilestoneReferral          Milestone = "referral"
	MilestoneComplaintFiled    Milestone = "complaint_filed"
	MilestoneJudgment          Milestone = "judgment"
	MilestoneSaleScheduled     Milestone = "sale_scheduled"
	MilestoneSaleCompleted     Milestone = "sale_completed"
	MilestoneReinstated        Milestone = "reinstated"
	MilestoneRedeemed          Milestone = "redeemed"
	MilestoneCaseDismissed     Milestone = "case_dismissed"
)

// terminalMilestones close the case when recorded.
var terminalMilestones = map[Milestone]struct{}{
	MilestoneSaleCompleted: {},
	MilestoneReinstated:    {},
	MilestoneRedeemed:      {},
	MilestoneCaseDismissed: {},
}

// ValidMilestone reports whether the name is known.
func ValidMilestone(m Milestone) bool {
	switch m {
	case MilestoneBreachLetterSent, MilestoneReferral, MilestoneComplaintFiled,
		MilestoneJudgment, MilestoneSaleScheduled, MilestoneSaleCompleted,
		MilestoneReinstated, MilestoneRedeemed, MilestoneCaseDismissed:
		return true
	}
	return false
}

// Terminal reports whether recording the milestone closes the case.
func (m Milestone) Terminal() bool {
	_, ok := terminalMilestones[m]
	return ok
}

// LoanStatusAfter is the loan status a milestone forces, if any. A completed
// sale charges the loan off, redemption pays it off, and reinstatement or
// dismissal returns it to active servicing.
func LoanStatusAfter(m Milestone) (loan.Status, bool) {
	switch m {
	case MilestoneSaleCompleted:
		return loan.StatusChargedOff, true
	case MilestoneRedeemed:
		return loan.StatusPaidOff, true
	case MilestoneReinstated, MilestoneCaseDismissed:
		return loan.StatusActive, true
	}
	return "", false
}

// ForeclosureCase tracks a loan through foreclosure.
type ForeclosureCase struct {
	ID       uuid.UUID
	LoanID   uuid.UUID
	Status   CaseStatus
	OpenedAt time.Time
	ClosedAt *time.Time
}

// NewForeclosureCase opens a case.
func NewForeclosureCase(loanID uuid.UUID, openedAt time.Time) ForeclosureCase {
	return ForeclosureCase{
		ID:       uuid.New(),
		LoanID:   loanID,
		Status:   CaseOpen,
		OpenedAt: openedAt,
	}
}

// RecordMilestone validates a milestone against the case state. The returned
// case reflects closure when the milestone is terminal.
func (c ForeclosureCase) RecordMilestone(m Milestone, at time.Time) (ForeclosureCase, error) {
	if !ValidMilestone(m) {
		return ForeclosureCase{}, fmt.Errorf("unknown foreclosure milestone %q", m)
	}
	if c.Status != CaseOpen {
		return ForeclosureCase{}, fmt.Errorf("case %s is closed", c.ID)
	}
	if m.Terminal() {
		c.Status = CaseClosed
		c.ClosedAt = &at
	}
	return c, nil
}

// MilestoneRecord is one recorded milestone for a case.
type MilestoneRecord struct {
	CaseID     uuid.UUID
	Milestone  Milestone
	RecordedAt time.Time
}
