package reconcile_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/reconcile"
)

const bai2Sample = `01,021000021,322271627,250310,0430,1,80,1,2/
02,322271627,021000021,1,250310,0430,USD,2/
03,0975312468,USD/
16,165,25000,REF742,Lockbox deposit,250310/
16,165,-12345,REF001,Wire in,250310
16,475,149888,CHK2041,Disbursement check/
16,698,1500,FEE88,Analysis charge,250311/
88,continued narrative
49,176543,5/
98,176543,1,7/
99,176543,1,9/
`

func TestParseBAI2(t *testing.T) {
	txns, err := reconcile.ParseBAI2(strings.NewReader(bai2Sample))
	require.NoError(t, err)
	require.Len(t, txns, 4)

	for _, txn := range txns {
		assert.Equal(t, "0975312468", txn.Account)
		assert.Equal(t, reconcile.TxnUnmatched, txn.Status)
	}

	assert.Equal(t, reconcile.TxnCredit, txns[0].Type)
	assert.Equal(t, int64(25_000), txns[0].AmountMinor)
	assert.Equal(t, "REF742", txns[0].BankRef)

	// A negative amount flips the credit code into a debit; the stored
	// amount is always positive.
	assert.Equal(t, reconcile.TxnDebit, txns[1].Type)
	assert.Equal(t, int64(12_345), txns[1].AmountMinor)
	assert.Equal(t, "REF001", txns[1].BankRef)
	assert.Equal(t, "Wire in", txns[1].Description)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), txns[1].PostedDate)

	// No per-txn date falls back to the file header date.
	assert.Equal(t, reconcile.TxnDebit, txns[2].Type)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), txns[2].PostedDate)

	// The 88 continuation extends the previous description.
	assert.Equal(t, reconcile.TxnFee, txns[3].Type)
	assert.Equal(t, "Analysis charge continued narrative", txns[3].Description)
	assert.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC), txns[3].PostedDate)
}

func TestParseBAI2_ReturnCode(t *testing.T) {
	input := "01,A,B,250401,0000,1,80,1,2/\n03,123456789,USD/\n16,755,5000,TRC1,ACH return/\n"
	txns, err := reconcile.ParseBAI2(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, reconcile.TxnReturn, txns[0].Type)
}

func TestParseBAI2_TxnBeforeAccount(t *testing.T) {
	input := "01,A,B,250401,0000,1,80,1,2/\n16,165,100,R,desc/\n"
	_, err := reconcile.ParseBAI2(strings.NewReader(input))
	assert.ErrorContains(t, err, "transaction before account identifier")
}

func TestParseBAI2_UnknownRecordCode(t *testing.T) {
	_, err := reconcile.ParseBAI2(strings.NewReader("42,bogus/\n"))
	assert.ErrorContains(t, err, "unknown record code")
}

func TestParseBAI2_DatePivot(t *testing.T) {
	input := "01,A,B,990115,0000,1,80,1,2/\n03,123456789,USD/\n16,165,100,R,old/\n"
	txns, err := reconcile.ParseBAI2(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1999, txns[0].PostedDate.Year())
}

func TestParseBAI2_NoDateAnywhere(t *testing.T) {
	input := "03,123456789,USD/\n16,165,100,R,desc/\n"
	_, err := reconcile.ParseBAI2(strings.NewReader(input))
	assert.ErrorContains(t, err, "no date")
}
