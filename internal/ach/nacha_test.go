package ach_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ach"
)

func testFileParams() ach.FileParams {
	return ach.FileParams{
		ImmediateDestination: "021000021",
		ImmediateOrigin:      "1234567890",
		DestinationName:      "FIRST NATIONAL",
		OriginName:           "LOANSERVE",
		ODFIRouting:          testODFI,
		CreatedAt:            time.Date(2025, time.June, 1, 14, 30, 0, 0, time.UTC),
	}
}

func sealedTestBatch(t *testing.T) ach.Batch {
	t.Helper()
	b := openBatch(t)
	b, err := b.AddEntry(draftEntry(149_888))
	require.NoError(t, err)
	noLoan := draftEntry(35_000)
	noLoan.LoanID = nil
	noLoan.TxnCode = ach.TxnSavingsCredit
	b, err = b.AddEntry(noLoan)
	require.NoError(t, err)
	b, err = b.Seal(testODFI, time.Now())
	require.NoError(t, err)
	return b
}

func TestBuildFile(t *testing.T) {
	file, err := ach.BuildFile(testFileParams(), []ach.Batch{sealedTestBatch(t)})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(file, "\n"), "\n")

	// Every record is 94 characters and the file blocks to a multiple of 10.
	require.Len(t, lines, 10)
	for i, line := range lines {
		assert.Len(t, line, 94, "record %d", i)
	}

	header := lines[0]
	assert.Equal(t, "101", header[:3])
	assert.Equal(t, " 021000021", header[3:13])
	assert.Equal(t, "1234567890", header[13:23])
	assert.Equal(t, "250601", header[23:29])
	assert.Equal(t, "1430", header[29:33])

	batchHeader := lines[1]
	assert.Equal(t, "5", batchHeader[:1])
	assert.Equal(t, "200", batchHeader[1:4], "mixed debits and credits")
	assert.Contains(t, batchHeader, "PPD")
	assert.Contains(t, batchHeader, "250602")

	debit := lines[2]
	assert.Equal(t, "627", debit[:3])
	assert.Equal(t, "02100002", debit[3:11])
	assert.Equal(t, "1", debit[11:12], "routing check digit")
	assert.Equal(t, "0000149888", debit[29:39])
	assert.Equal(t, "322271620000001", debit[79:94])

	credit := lines[3]
	assert.Equal(t, "632", credit[:3])
	// Entries without a loan leave the individual id blank.
	assert.Equal(t, strings.Repeat(" ", 15), credit[39:54])

	control := lines[4]
	assert.Equal(t, "8200", control[:4])
	assert.Equal(t, "000002", control[4:10], "entry count")
	assert.Equal(t, "0004200004", control[10:20], "entry hash")
	assert.Equal(t, "000000149888", control[20:32], "total debits")
	assert.Equal(t, "000000035000", control[32:44], "total credits")

	fileControl := lines[5]
	assert.Equal(t, "9", fileControl[:1])
	assert.Equal(t, "000001", fileControl[1:7], "batch count")
	assert.Equal(t, "000001", fileControl[7:13], "block count")
	assert.Equal(t, "00000002", fileControl[13:21], "entry count")

	for _, pad := range lines[6:] {
		assert.Equal(t, strings.Repeat("9", 94), pad)
	}
}

func TestBuildFile_LoanScopedIndividualID(t *testing.T) {
	b := openBatch(t)
	entry := draftEntry(100_000)
	b, err := b.AddEntry(entry)
	require.NoError(t, err)
	b, err = b.Seal(testODFI, time.Now())
	require.NoError(t, err)

	file, err := ach.BuildFile(testFileParams(), []ach.Batch{b})
	require.NoError(t, err)

	lines := strings.Split(file, "\n")
	detail := lines[2]
	assert.Equal(t, entry.LoanID.String()[:15], detail[39:54])
}

func TestBuildFile_RejectsUnsealed(t *testing.T) {
	b := openBatch(t)
	b, err := b.AddEntry(draftEntry(100))
	require.NoError(t, err)

	_, err = ach.BuildFile(testFileParams(), []ach.Batch{b})
	assert.ErrorIs(t, err, ach.ErrBatchNotSealed)
}

func TestBuildFile_RejectsEmpty(t *testing.T) {
	_, err := ach.BuildFile(testFileParams(), nil)
	assert.ErrorContains(t, err, "no batches")
}

func TestBuildFile_DebitOnlyServiceClass(t *testing.T) {
	b := openBatch(t)
	b, err := b.AddEntry(draftEntry(50_000))
	require.NoError(t, err)
	b, err = b.Seal(testODFI, time.Now())
	require.NoError(t, err)

	file, err := ach.BuildFile(testFileParams(), []ach.Batch{b})
	require.NoError(t, err)

	lines := strings.Split(file, "\n")
	assert.Equal(t, "5225", lines[1][:4])
	assert.Equal(t, "8225", lines[3][:4])
}

func TestBuildFile_TwoBatchesAggregate(t *testing.T) {
	b1 := sealedTestBatch(t)

	b2 := openBatch(t)
	var err error
	b2, err = b2.AddEntry(draftEntry(10_000))
	require.NoError(t, err)
	b2, err = b2.Seal(testODFI, time.Now())
	require.NoError(t, err)

	file, err := ach.BuildFile(testFileParams(), []ach.Batch{b1, b2})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(file, "\n"), "\n")
	// 1 header + (1+2+1) + (1+1+1) + 1 control = 9 records, padded to 10.
	require.Len(t, lines, 10)

	fileControl := lines[8]
	assert.Equal(t, "9", fileControl[:1])
	assert.Equal(t, "000002", fileControl[1:7], "batch count")
	assert.Equal(t, "00000003", fileControl[13:21], "entry count")
	assert.Equal(t, "0006300006", fileControl[21:31], "entry hash")
	assert.Equal(t, "000000159888", fileControl[31:43], "total debits")
	assert.Equal(t, "000000035000", fileControl[43:55], "total credits")
}
