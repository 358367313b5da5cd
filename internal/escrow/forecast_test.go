package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func TestFrequencyStep(t *testing.T) {
	start := day("2025-01-31")

	assert.Equal(t, day("2025-02-28"), FrequencyMonthly.Step(start))
	assert.Equal(t, day("2025-04-30"), FrequencyQuarterly.Step(start))
	assert.Equal(t, day("2025-07-31"), FrequencySemiAnnual.Step(start))
	assert.Equal(t, day("2026-01-31"), FrequencyAnnual.Step(start))
	assert.Equal(t, 2125, FrequencyOnce.Step(start).Year())
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("semi_annual")
	require.NoError(t, err)
	assert.Equal(t, FrequencySemiAnnual, f)

	_, err = ParseFrequency("weekly")
	assert.Error(t, err)
}

func TestProjectItems_MonthlyWithinHorizon(t *testing.T) {
	items := []Item{{
		ID:          testutil.TestEscrowItemID,
		LoanID:      testutil.TestLoanID,
		Kind:        "insurance",
		AmountMinor: 10_000,
		Frequency:   FrequencyMonthly,
		NextDueDate: day("2025-01-15"),
		Active:      true,
	}}

	rows := ProjectItems(items, day("2025-01-01"))

	require.Len(t, rows, 12)
	assert.Equal(t, day("2025-01-15"), rows[0].DueDate)
	assert.Equal(t, day("2025-12-15"), rows[11].DueDate)
	for _, row := range rows {
		assert.Equal(t, int64(10_000), row.AmountMinor)
		assert.Equal(t, testutil.TestEscrowItemID, row.EscrowID)
	}
}

func TestProjectItems_AdvancesStaleNextDue(t *testing.T) {
	items := []Item{{
		ID:          testutil.TestEscrowItemID,
		LoanID:      testutil.TestLoanID,
		Kind:        "tax",
		AmountMinor: 300_000,
		Frequency:   FrequencySemiAnnual,
		NextDueDate: day("2024-04-10"),
		Active:      true,
	}}

	rows := ProjectItems(items, day("2025-01-01"))

	require.Len(t, rows, 2)
	assert.Equal(t, day("2025-04-10"), rows[0].DueDate)
	assert.Equal(t, day("2025-10-10"), rows[1].DueDate)
}

func TestProjectItems_OnceEmitsSingleRow(t *testing.T) {
	items := []Item{{
		ID:          testutil.TestEscrowItemID,
		LoanID:      testutil.TestLoanID,
		Kind:        "hoa",
		AmountMinor: 50_000,
		Frequency:   FrequencyOnce,
		NextDueDate: day("2025-06-01"),
		Active:      true,
	}}

	rows := ProjectItems(items, day("2025-01-01"))

	require.Len(t, rows, 1)
	assert.Equal(t, day("2025-06-01"), rows[0].DueDate)
}

func TestProjectItems_PastOnceNeverEmits(t *testing.T) {
	items := []Item{{
		ID:          testutil.TestEscrowItemID,
		LoanID:      testutil.TestLoanID,
		Kind:        "hoa",
		AmountMinor: 50_000,
		Frequency:   FrequencyOnce,
		NextDueDate: day("2024-06-01"),
		Active:      true,
	}}

	assert.Empty(t, ProjectItems(items, day("2025-01-01")))
}
