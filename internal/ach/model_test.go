package ach_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ach"
)

const testODFI = "322271627"

func openBatch(t *testing.T) ach.Batch {
	t.Helper()
	b, err := ach.NewBatch(1, "LOANSERVE", "1234567890", ach.SECPPD, "LOAN PMT",
		time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return b
}

func draftEntry(amount int64) ach.Entry {
	loanID := uuid.New()
	return ach.Entry{
		LoanID:         &loanID,
		TxnCode:        ach.TxnCheckingDebit,
		RDFIRouting:    "021000021",
		AccountNumber:  "9876543210",
		AmountMinor:    amount,
		IndividualName: "JANE BORROWER",
	}
}

func TestBatch_AddEntry(t *testing.T) {
	b := openBatch(t)

	b2, err := b.AddEntry(draftEntry(149_888))
	require.NoError(t, err)
	require.Len(t, b2.Entries, 1)
	assert.Empty(t, b2.Entries[0].TraceNumber)
	assert.Equal(t, b2.ID, b2.Entries[0].BatchID)
	assert.NotEqual(t, uuid.Nil, b2.Entries[0].ID)

	// The original batch is untouched.
	assert.Empty(t, b.Entries)
}

func TestBatch_AddEntry_Validation(t *testing.T) {
	b := openBatch(t)

	bad := draftEntry(100)
	bad.TxnCode = 99
	_, err := b.AddEntry(bad)
	assert.ErrorIs(t, err, ach.ErrInvalidTxnCode)

	bad = draftEntry(100)
	bad.RDFIRouting = "12345"
	_, err = b.AddEntry(bad)
	assert.ErrorIs(t, err, ach.ErrInvalidRouting)

	bad = draftEntry(0)
	_, err = b.AddEntry(bad)
	assert.ErrorContains(t, err, "must be positive")
}

func TestBatch_Seal(t *testing.T) {
	b := openBatch(t)
	b, err := b.AddEntry(draftEntry(149_888))
	require.NoError(t, err)
	credit := draftEntry(50_000)
	credit.TxnCode = ach.TxnCheckingCredit
	b, err = b.AddEntry(credit)
	require.NoError(t, err)

	sealed, err := b.Seal(testODFI, time.Now())
	require.NoError(t, err)

	assert.Equal(t, ach.BatchSealed, sealed.Status)
	require.NotNil(t, sealed.SealedAt)
	assert.Equal(t, int64(149_888), sealed.TotalDebitMinor)
	assert.Equal(t, int64(50_000), sealed.TotalCreditMinor)

	// Trace numbers are ODFI prefix plus a 1-based sequence.
	assert.Equal(t, "322271620000001", sealed.Entries[0].TraceNumber)
	assert.Equal(t, "322271620000002", sealed.Entries[1].TraceNumber)

	// Entry hash sums the first eight digits of each receiving routing.
	assert.Equal(t, int64(2*2100002), sealed.EntryHash)

	// Sealed batches reject further entries and a second seal.
	_, err = sealed.AddEntry(draftEntry(1))
	assert.ErrorIs(t, err, ach.ErrBatchNotOpen)
	_, err = sealed.Seal(testODFI, time.Now())
	assert.ErrorIs(t, err, ach.ErrBatchNotOpen)
}

func TestBatch_Seal_Empty(t *testing.T) {
	b := openBatch(t)
	_, err := b.Seal(testODFI, time.Now())
	assert.ErrorIs(t, err, ach.ErrEmptyBatch)
}

func TestBatch_Lifecycle(t *testing.T) {
	b := openBatch(t)
	b, err := b.AddEntry(draftEntry(100_000))
	require.NoError(t, err)
	b, err = b.Seal(testODFI, time.Now())
	require.NoError(t, err)

	filed, err := b.MarkFiled()
	require.NoError(t, err)
	assert.Equal(t, ach.BatchFiled, filed.Status)

	settled, err := filed.MarkSettled()
	require.NoError(t, err)
	assert.Equal(t, ach.BatchSettled, settled.Status)

	// Settled is terminal.
	_, err = settled.MarkFailed()
	assert.ErrorIs(t, err, ach.ErrBadStatusChange)
	_, err = settled.MarkFiled()
	assert.ErrorIs(t, err, ach.ErrBadStatusChange)

	failed, err := filed.MarkFailed()
	require.NoError(t, err)
	assert.Equal(t, ach.BatchFailed, failed.Status)
}

func TestMaskAccount(t *testing.T) {
	assert.Equal(t, "****3210", ach.MaskAccount("9876543210"))
	assert.Equal(t, "****", ach.MaskAccount("123"))
}

func TestRetryableReturn(t *testing.T) {
	assert.True(t, ach.RetryableReturn(ach.ReturnNSF))
	assert.True(t, ach.RetryableReturn(ach.ReturnUncollected))
	assert.False(t, ach.RetryableReturn(ach.ReturnAccountClosed))
	assert.False(t, ach.RetryableReturn(ach.ReturnAuthorityRevoked))
}
