package collections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func TestForeclosureCase_Milestones(t *testing.T) {
	now := time.Now().UTC()
	fc := NewForeclosureCase(testutil.TestLoanID, now)
	assert.Equal(t, CaseOpen, fc.Status)

	updated, err := fc.RecordMilestone(MilestoneBreachLetterSent, now)
	require.NoError(t, err)
	assert.Equal(t, CaseOpen, updated.Status)
	assert.Nil(t, updated.ClosedAt)

	closed, err := updated.RecordMilestone(MilestoneReinstated, now)
	require.NoError(t, err)
	assert.Equal(t, CaseClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = closed.RecordMilestone(MilestoneReferral, now)
	assert.Error(t, err)
}

func TestForeclosureCase_UnknownMilestone(t *testing.T) {
	fc := NewForeclosureCase(testutil.TestLoanID, time.Now().UTC())
	_, err := fc.RecordMilestone(Milestone("eviction"), time.Now().UTC())
	assert.Error(t, err)
}

func TestLoanStatusAfter(t *testing.T) {
	tests := []struct {
		milestone Milestone
		status    loan.Status
		changes   bool
	}{
		{MilestoneSaleCompleted, loan.StatusChargedOff, true},
		{MilestoneRedeemed, loan.StatusPaidOff, true},
		{MilestoneReinstated, loan.StatusActive, true},
		{MilestoneCaseDismissed, loan.StatusActive, true},
		{MilestoneBreachLetterSent, "", false},
		{MilestoneJudgment, "", false},
	}
	for _, tt := range tests {
		status, changes := LoanStatusAfter(tt.milestone)
		assert.Equal(t, tt.changes, changes, string(tt.milestone))
		assert.Equal(t, tt.status, status, string(tt.milestone))
	}
}

func TestMilestone_TerminalSet(t *testing.T) {
	assert.True(t, MilestoneSaleCompleted.Terminal())
	assert.True(t, MilestoneReinstated.Terminal())
	assert.True(t, MilestoneRedeemed.Terminal())
	assert.True(t, MilestoneCaseDismissed.Terminal())
	assert.False(t, MilestoneBreachLetterSent.Terminal())
	assert.False(t, MilestoneJudgment.Terminal())
}
