package collections

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle state of a payment plan.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanDefaulted PlanStatus = "defaulted"
	PlanCanceled  PlanStatus = "canceled"
)

// InstallmentStatus tracks one installment's repayment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

var (
	ErrPlanNotDraft  = errors.New("plan is not in draft")
	ErrPlanNotActive = errors.New("plan is not active")
)

// Installment is one scheduled plan payment.
type Installment struct {
	InstallmentNo  int
	DueDate        time.Time
	ScheduledMinor int64
	PaidMinor      int64
	Status         InstallmentStatus
}

// Plan is a negotiated repayment arrangement. Only one active plan may exist
// per loan at a time.
type Plan struct {
	ID           uuid.UUID
	LoanID       uuid.UUID
	Status       PlanStatus
	Installments []Installment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPlan drafts a plan from scheduled installments.
func NewPlan(loanID uuid.UUID, installments []Installment, now time.Time) (Plan, error) {
	if len(installments) == 0 {
		return Plan{}, errors.New("plan requires at least one installment")
	}
	for i := range installments {
		if installments[i].ScheduledMinor <= 0 {
			return Plan{}, fmt.Errorf("installment %d amount must be positive", i+1)
		}
		installments[i].InstallmentNo = i + 1
		installments[i].Status = InstallmentPending
		installments[i].PaidMinor = 0
	}
	return Plan{
		ID:           uuid.New(),
		LoanID:       loanID,
		Status:       PlanDraft,
		Installments: installments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Activate moves a draft plan into force.
func (p Plan) Activate(now time.Time) (Plan, error) {
	if p.Status != PlanDraft {
		return Plan{}, ErrPlanNotDraft
	}
	p.Status = PlanActive
	p.UpdatedAt = now
	return p, nil
}

// Cancel withdraws a draft or active plan.
func (p Plan) Cancel(now time.Time) (Plan, error) {
	if p.Status != PlanDraft && p.Status != PlanActive {
		return Plan{}, fmt.Errorf("cannot cancel plan in status %s", p.Status)
	}
	p.Status = PlanCanceled
	p.UpdatedAt = now
	return p, nil
}

// ApplyPayment spreads an amount across installments in order. Each
// installment fills to its scheduled amount before the next one starts. When
// every installment is paid the plan completes.
func (p Plan) ApplyPayment(amountMinor int64, now time.Time) (Plan, error) {
	if p.Status != PlanActive {
		return Plan{}, ErrPlanNotActive
	}
	if amountMinor <= 0 {
		return Plan{}, errors.New("payment amount must be positive")
	}

	installments := make([]Installment, len(p.Installments))
	copy(installments, p.Installments)

	remaining := amountMinor
	for i := range installments {
		if remaining <= 0 {
			break
		}
		owed := installments[i].ScheduledMinor - installments[i].PaidMinor
		if owed <= 0 {
			continue
		}
		take := owed
		if remaining < owed {
			take = remaining
		}
		installments[i].PaidMinor += take
		remaining -= take
		if installments[i].PaidMinor >= installments[i].ScheduledMinor {
			installments[i].Status = InstallmentPaid
		} else {
			installments[i].Status = InstallmentPartial
		}
	}

	p.Installments = installments
	p.UpdatedAt = now
	if p.allPaid() {
		p.Status = PlanCompleted
	}
	return p, nil
}

// MarkDefaulted is the daily sweep outcome for a plan with a missed
// installment.
func (p Plan) MarkDefaulted(now time.Time) (Plan, error) {
	if p.Status != PlanActive {
		return Plan{}, ErrPlanNotActive
	}
	p.Status = PlanDefaulted
	p.UpdatedAt = now
	return p, nil
}

// PastDue reports whether any installment due on or before asOf is unpaid.
func (p Plan) PastDue(asOf time.Time) bool {
	for _, inst := range p.Installments {
		if inst.DueDate.After(asOf) {
			continue
		}
		if inst.Status != InstallmentPaid {
			return true
		}
	}
	return false
}

func (p Plan) allPaid() bool {
	for _, inst := range p.Installments {
		if inst.Status != InstallmentPaid {
			return false
		}
	}
	return true
}
