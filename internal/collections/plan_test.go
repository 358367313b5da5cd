package collections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func draftPlan(t *testing.T) Plan {
	t.Helper()
	plan, err := NewPlan(testutil.TestLoanID, []Installment{
		{DueDate: day("2025-05-01"), ScheduledMinor: 50_000},
		{DueDate: day("2025-06-01"), ScheduledMinor: 50_000},
		{DueDate: day("2025-07-01"), ScheduledMinor: 50_000},
	}, time.Now().UTC())
	require.NoError(t, err)
	return plan
}

func TestNewPlan_NumbersInstallments(t *testing.T) {
	plan := draftPlan(t)

	assert.Equal(t, PlanDraft, plan.Status)
	for i, inst := range plan.Installments {
		assert.Equal(t, i+1, inst.InstallmentNo)
		assert.Equal(t, InstallmentPending, inst.Status)
		assert.Zero(t, inst.PaidMinor)
	}

	_, err := NewPlan(testutil.TestLoanID, nil, time.Now().UTC())
	assert.Error(t, err)
	_, err = NewPlan(testutil.TestLoanID, []Installment{{ScheduledMinor: 0}}, time.Now().UTC())
	assert.Error(t, err)
}

func TestPlan_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	plan := draftPlan(t)

	active, err := plan.Activate(now)
	require.NoError(t, err)
	assert.Equal(t, PlanActive, active.Status)

	_, err = active.Activate(now)
	assert.ErrorIs(t, err, ErrPlanNotDraft)

	canceled, err := active.Cancel(now)
	require.NoError(t, err)
	assert.Equal(t, PlanCanceled, canceled.Status)

	_, err = canceled.Cancel(now)
	assert.Error(t, err)
}

func TestPlan_ApplyPaymentWalksInstallments(t *testing.T) {
	now := time.Now().UTC()
	plan := draftPlan(t)
	active, err := plan.Activate(now)
	require.NoError(t, err)

	// 75000 pays the first installment and half the second.
	updated, err := active.ApplyPayment(75_000, now)
	require.NoError(t, err)
	assert.Equal(t, InstallmentPaid, updated.Installments[0].Status)
	assert.Equal(t, InstallmentPartial, updated.Installments[1].Status)
	assert.Equal(t, int64(25_000), updated.Installments[1].PaidMinor)
	assert.Equal(t, InstallmentPending, updated.Installments[2].Status)
	assert.Equal(t, PlanActive, updated.Status)

	// The original plan is unchanged.
	assert.Equal(t, InstallmentPending, active.Installments[0].Status)

	completed, err := updated.ApplyPayment(75_000, now)
	require.NoError(t, err)
	assert.Equal(t, PlanCompleted, completed.Status)
	for _, inst := range completed.Installments {
		assert.Equal(t, InstallmentPaid, inst.Status)
	}
}

func TestPlan_ApplyPaymentRequiresActive(t *testing.T) {
	plan := draftPlan(t)
	_, err := plan.ApplyPayment(1_000, time.Now().UTC())
	assert.ErrorIs(t, err, ErrPlanNotActive)
}

func TestPlan_PastDueAndDefault(t *testing.T) {
	now := time.Now().UTC()
	plan := draftPlan(t)
	active, err := plan.Activate(now)
	require.NoError(t, err)

	assert.False(t, active.PastDue(day("2025-04-30")))
	assert.True(t, active.PastDue(day("2025-05-02")))

	paid, err := active.ApplyPayment(50_000, now)
	require.NoError(t, err)
	assert.False(t, paid.PastDue(day("2025-05-02")))
	assert.True(t, paid.PastDue(day("2025-06-15")))

	defaulted, err := paid.MarkDefaulted(now)
	require.NoError(t, err)
	assert.Equal(t, PlanDefaulted, defaulted.Status)
}
