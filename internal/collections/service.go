package collections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// PlanManager drives the payment-plan lifecycle.
type PlanManager struct {
	repo   *Repo
	logger *slog.Logger
}

func NewPlanManager(repo *Repo, logger *slog.Logger) *PlanManager {
	return &PlanManager{repo: repo, logger: logger}
}

// Draft creates a new plan in draft state.
func (m *PlanManager) Draft(ctx context.Context, loanID uuid.UUID, installments []Installment) (Plan, error) {
	plan, err := NewPlan(loanID, installments, time.Now().UTC())
	if err != nil {
		return Plan{}, err
	}
	if err := m.repo.SavePlan(ctx, plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Activate puts a draft plan in force. The partial unique index rejects a
// second active plan for the loan.
func (m *PlanManager) Activate(ctx context.Context, plan Plan) (Plan, error) {
	active, err := plan.Activate(time.Now().UTC())
	if err != nil {
		return Plan{}, err
	}
	if err := m.repo.SavePlan(ctx, active); err != nil {
		return Plan{}, err
	}
	m.logger.Info("payment plan activated", "plan_id", active.ID, "loan_id", active.LoanID)
	return active, nil
}

// ApplyPayment applies an amount to the loan's active plan, if any.
func (m *PlanManager) ApplyPayment(ctx context.Context, loanID uuid.UUID, amountMinor int64) error {
	plan, err := m.repo.ActivePlan(ctx, loanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return nil
	}
	updated, err := plan.ApplyPayment(amountMinor, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := m.repo.SavePlan(ctx, updated); err != nil {
		return err
	}
	if updated.Status == PlanCompleted {
		m.logger.Info("payment plan completed", "plan_id", updated.ID, "loan_id", loanID)
	}
	return nil
}

// SweepDefaults marks every active plan with a missed installment defaulted.
func (m *PlanManager) SweepDefaults(ctx context.Context, asOf time.Time) (int, error) {
	loanIDs, err := m.repo.ActivePlans(ctx)
	if err != nil {
		return 0, err
	}

	defaulted := 0
	for _, loanID := range loanIDs {
		plan, err := m.repo.ActivePlan(ctx, loanID)
		if err != nil {
			return defaulted, err
		}
		if plan == nil || !plan.PastDue(asOf) {
			continue
		}
		updated, err := plan.MarkDefaulted(time.Now().UTC())
		if err != nil {
			return defaulted, err
		}
		if err := m.repo.SavePlan(ctx, updated); err != nil {
			return defaulted, err
		}
		m.logger.Warn("payment plan defaulted", "plan_id", plan.ID, "loan_id", loanID)
		defaulted++
	}
	return defaulted, nil
}

// CaseManager records foreclosure milestones, closes cases on terminal
// ones, and applies the resulting loan status.
type CaseManager struct {
	repo   *Repo
	loans  StatusWriter
	ledger *ledger.Service
	logger *slog.Logger
}

func NewCaseManager(repo *Repo, loans StatusWriter, ledgerSvc *ledger.Service, logger *slog.Logger) *CaseManager {
	return &CaseManager{repo: repo, loans: loans, ledger: ledgerSvc, logger: logger}
}

// RecordMilestone records a milestone once per case. A terminal milestone
// closes the case and moves the loan to its post-foreclosure status; a
// completed sale also writes off the remaining principal. Re-recording an
// existing milestone is a no-op.
func (m *CaseManager) RecordMilestone(ctx context.Context, caseID uuid.UUID, milestone Milestone) error {
	fc, err := m.repo.FindCase(ctx, caseID)
	if err != nil {
		return err
	}
	updated, err := fc.RecordMilestone(milestone, time.Now().UTC())
	if err != nil {
		return err
	}

	inserted, err := m.repo.InsertMilestone(ctx, MilestoneRecord{
		CaseID:     caseID,
		Milestone:  milestone,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if updated.Status == CaseClosed {
		if err := m.repo.UpdateCase(ctx, updated); err != nil {
			return err
		}
	}

	if milestone == MilestoneSaleCompleted {
		if err := m.chargeOff(ctx, fc.LoanID, caseID); err != nil {
			return err
		}
	}
	if status, ok := LoanStatusAfter(milestone); ok {
		if err := m.loans.UpdateStatus(ctx, fc.LoanID, status, time.Now().UTC()); err != nil {
			return err
		}
		m.logger.Info("loan status updated from foreclosure milestone",
			"loan_id", fc.LoanID,
			"milestone", milestone,
			"status", status,
		)
	}

	env, err := events.NewEnvelope(events.SchemaForeclosureMilestoneHit,
		fmt.Sprintf("foreclosure:case:%s:%s", caseID, milestone), "", map[string]any{
			"case_id":   caseID,
			"loan_id":   fc.LoanID,
			"milestone": milestone,
			"terminal":  milestone.Terminal(),
		})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(caseID, events.TopicPaymentsEvents, env)
	if err != nil {
		return err
	}
	if err := m.repo.InsertOutbox(ctx, m.repo.pool, entry); err != nil {
		return err
	}

	m.logger.Info("foreclosure milestone recorded",
		"case_id", caseID,
		"milestone", milestone,
		"case_closed", updated.Status == CaseClosed,
	)
	return nil
}

// chargeOff writes the loan's remaining principal off against expense. A
// duplicate correlation means the write-off already posted.
func (m *CaseManager) chargeOff(ctx context.Context, loanID, caseID uuid.UUID) error {
	balances, err := m.ledger.LatestBalances(ctx, loanID)
	if err != nil {
		return err
	}
	if balances.Principal <= 0 {
		return nil
	}

	correlation := fmt.Sprintf("chargeoff:loan:%s:case:%s", loanID, caseID)
	req := ledger.ChargeOff(loanID, time.Now().UTC(), correlation, "USD", balances.Principal)
	if _, err := m.ledger.PostEvent(ctx, req); err != nil {
		if errors.Is(err, ledger.ErrDuplicateCorrelation) {
			return nil
		}
		return err
	}
	m.logger.Warn("loan principal charged off",
		"loan_id", loanID,
		"case_id", caseID,
		"principal_minor", balances.Principal,
	)
	return nil
}
