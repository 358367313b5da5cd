package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Event schemas for the standard posting shapes.
const (
	SchemaPayment     = "posting.payment.v1"
	SchemaAccrual     = "posting.accrual.v1"
	SchemaFee         = "posting.fee.v1"
	SchemaLateFee     = "posting.late_fee.v1"
	SchemaEscrow      = "posting.escrow.v1"
	SchemaOrigination = "posting.origination.v1"
	SchemaChargeOff   = "posting.chargeoff.v1"
	SchemaReversal    = "posting.reversal.v1"

	SchemaEscrowDisbursement = "escrow.disbursement.v1"

	SchemaBankCharge = "posting.bank_charge.v1"
)

// PaymentReceived debits cash for the full payment and credits the supplied
// allocation lines. The credit lines come from the waterfall allocator.
func PaymentReceived(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency string, paymentMinor int64, credits []Line) PostRequest {
	lines := make([]Line, 0, len(credits)+1)
	lines = append(lines, Debit(AccountCash, paymentMinor, currency, "Payment received"))
	lines = append(lines, credits...)
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaPayment,
		Currency:      currency,
		Lines:         lines,
	}
}

// InterestAccrual recognizes periodic interest as receivable income.
func InterestAccrual(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency string, interestMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaAccrual,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountInterestReceivable, interestMinor, currency, "Interest accrual"),
			Credit(AccountInterestIncome, interestMinor, currency, "Interest accrual"),
		},
	}
}

// FeeAssessment books a servicing fee as receivable income.
func FeeAssessment(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency, memo string, feeMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaFee,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountFeesReceivable, feeMinor, currency, memo),
			Credit(AccountFeeIncome, feeMinor, currency, memo),
		},
	}
}

// LateFeeAssessment books a late fee against late-fee income.
func LateFeeAssessment(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency string, feeMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaLateFee,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountFeesReceivable, feeMinor, currency, "Late fee assessed"),
			Credit(AccountLateFeeIncome, feeMinor, currency, "Late fee assessed"),
		},
	}
}

// EscrowPayment relieves the escrow liability with cash out the door.
func EscrowPayment(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency, memo string, amountMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaEscrow,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountEscrowLiability, amountMinor, currency, memo),
			Credit(AccountCash, amountMinor, currency, memo),
		},
	}
}

// EscrowDisbursementPosting pays an escrow item. When the liability balance
// cannot cover the amount, the shortfall is advanced by the servicer and
// booked to escrow_advances alongside the covered portion.
func EscrowDisbursementPosting(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency, memo string, amountMinor, availableMinor int64) PostRequest {
	var lines []Line
	covered := amountMinor
	if availableMinor < amountMinor {
		covered = availableMinor
		shortfall := amountMinor - availableMinor
		lines = append(lines,
			Debit(AccountEscrowAdvances, shortfall, currency, memo+" (advance)"),
			Credit(AccountCash, shortfall, currency, memo+" (advance)"),
		)
	}
	if covered > 0 {
		lines = append(lines,
			Debit(AccountEscrowLiability, covered, currency, memo),
			Credit(AccountCash, covered, currency, memo),
		)
	}
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaEscrowDisbursement,
		Currency:      currency,
		Lines:         lines,
	}
}

// BankCharge absorbs a bank-side fee or variance that has no loan to bear
// it. The loan ID stays nil; the expense lands on the servicer.
func BankCharge(effectiveDate time.Time, correlationID, currency, memo string, amountMinor int64) PostRequest {
	return PostRequest{
		LoanID:        uuid.Nil,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaBankCharge,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountFeeExpense, amountMinor, currency, memo),
			Credit(AccountCash, amountMinor, currency, memo),
		},
	}
}

// LoanOrigination funds a loan: the receivable goes up, cash goes out.
func LoanOrigination(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency string, principalMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaOrigination,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountLoanPrincipal, principalMinor, currency, "Loan origination"),
			Credit(AccountCash, principalMinor, currency, "Loan funding"),
		},
	}
}

// ChargeOff writes the remaining principal off to expense.
func ChargeOff(loanID uuid.UUID, effectiveDate time.Time, correlationID, currency string, principalMinor int64) PostRequest {
	return PostRequest{
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		CorrelationID: correlationID,
		Schema:        SchemaChargeOff,
		Currency:      currency,
		Lines: []Line{
			Debit(AccountWriteoffExpense, principalMinor, currency, "Charge-off"),
			Credit(AccountLoanPrincipal, principalMinor, currency, "Charge-off"),
		},
	}
}
