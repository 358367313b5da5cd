package ledger_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
)

func TestPaymentReceived_BalancedAgainstAllocations(t *testing.T) {
	loanID := uuid.New()
	credits := []ledger.Line{
		ledger.Credit(ledger.AccountFeesReceivable, 5_000, "USD", "Fees paid"),
		ledger.Credit(ledger.AccountInterestReceivable, 12_000, "USD", "Current interest paid"),
		ledger.Credit(ledger.AccountEscrowLiability, 8_000, "USD", "Escrow deposit"),
	}

	req := ledger.PaymentReceived(loanID, testDate, "payment:loan:1:gw:A", "USD", 25_000, credits)
	require.NoError(t, req.Validate())
	assert.Equal(t, ledger.SchemaPayment, req.Schema)
	assert.Len(t, req.Lines, 4)
	assert.Equal(t, ledger.AccountCash, req.Lines[0].Account)
	assert.Equal(t, int64(25_000), req.Lines[0].DebitMinor)
}

func TestStandardPostings_AllBalanced(t *testing.T) {
	loanID := uuid.New()
	requests := []ledger.PostRequest{
		ledger.InterestAccrual(loanID, testDate, "accrual:1", "USD", 125_000),
		ledger.FeeAssessment(loanID, testDate, "fee:1", "USD", "NSF fee", 2_500),
		ledger.LateFeeAssessment(loanID, testDate, "latefee:1", "USD", 5_000),
		ledger.EscrowPayment(loanID, testDate, "escrow:1", "USD", "County tax", 60_000),
		ledger.LoanOrigination(loanID, testDate, "orig:1", "USD", 25_000_000),
		ledger.ChargeOff(loanID, testDate, "chargeoff:1", "USD", 1_000_000),
	}
	for _, req := range requests {
		require.NoError(t, req.Validate(), req.Schema)

		var debits, credits int64
		for _, l := range req.Lines {
			debits += l.DebitMinor
			credits += l.CreditMinor
		}
		assert.Equal(t, debits, credits, req.Schema)
		assert.NotZero(t, debits, req.Schema)
	}
}

func TestEscrowDisbursement_CoveredByLiability(t *testing.T) {
	req := ledger.EscrowDisbursementPosting(uuid.New(), testDate, "escrow:disb:1", "USD", "County tax", 60_000, 80_000)
	require.NoError(t, req.Validate())
	require.Len(t, req.Lines, 2)
	assert.Equal(t, ledger.AccountEscrowLiability, req.Lines[0].Account)
	assert.Equal(t, int64(60_000), req.Lines[0].DebitMinor)
	assert.Equal(t, ledger.AccountCash, req.Lines[1].Account)
	assert.Equal(t, int64(60_000), req.Lines[1].CreditMinor)
}

func TestEscrowDisbursement_ShortfallAdvanced(t *testing.T) {
	req := ledger.EscrowDisbursementPosting(uuid.New(), testDate, "escrow:disb:2", "USD", "County tax", 60_000, 25_000)
	require.NoError(t, req.Validate())
	require.Len(t, req.Lines, 4)
	assert.Equal(t, ledger.AccountEscrowAdvances, req.Lines[0].Account)
	assert.Equal(t, int64(35_000), req.Lines[0].DebitMinor)
	assert.Equal(t, ledger.AccountEscrowLiability, req.Lines[2].Account)
	assert.Equal(t, int64(25_000), req.Lines[2].DebitMinor)
}

func TestEscrowDisbursement_NothingAvailable(t *testing.T) {
	req := ledger.EscrowDisbursementPosting(uuid.New(), testDate, "escrow:disb:3", "USD", "County tax", 60_000, 0)
	require.NoError(t, req.Validate())
	require.Len(t, req.Lines, 2)
	assert.Equal(t, ledger.AccountEscrowAdvances, req.Lines[0].Account)
	assert.Equal(t, int64(60_000), req.Lines[0].DebitMinor)
}

func TestLateFee_CreditsLateFeeIncome(t *testing.T) {
	req := ledger.LateFeeAssessment(uuid.New(), testDate, "latefee:2", "USD", 2_500)
	assert.Equal(t, ledger.SchemaLateFee, req.Schema)
	assert.Equal(t, ledger.AccountFeesReceivable, req.Lines[0].Account)
	assert.Equal(t, ledger.AccountLateFeeIncome, req.Lines[1].Account)
}
