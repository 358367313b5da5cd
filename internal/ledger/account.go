package ledger

import "fmt"

// Account is a general-ledger account in the servicing chart of accounts.
type Account string

const (
	AccountCash                Account = "cash"
	AccountLoanPrincipal       Account = "loan_principal"
	AccountInterestReceivable  Account = "interest_receivable"
	AccountInterestIncome      Account = "interest_income"
	AccountEscrowLiability     Account = "escrow_liability"
	AccountEscrowAdvances      Account = "escrow_advances"
	AccountEscrowRefundPayable Account = "escrow_refund_payable"
	AccountFeesReceivable      Account = "fees_receivable"
	AccountFeeIncome           Account = "fee_income"
	AccountLateFeeIncome       Account = "late_fee_income"
	AccountFeeExpense          Account = "fee_expense"
	AccountWriteoffExpense     Account = "writeoff_expense"
	AccountSuspense            Account = "suspense"
)

var validAccounts = map[Account]struct{}{
	AccountCash:                {},
	AccountLoanPrincipal:       {},
	AccountInterestReceivable:  {},
	AccountInterestIncome:      {},
	AccountEscrowLiability:     {},
	AccountEscrowAdvances:      {},
	AccountEscrowRefundPayable: {},
	AccountFeesReceivable:      {},
	AccountFeeIncome:           {},
	AccountLateFeeIncome:       {},
	AccountFeeExpense:          {},
	AccountWriteoffExpense:     {},
	AccountSuspense:            {},
}

// ParseAccount validates an account name.
func ParseAccount(s string) (Account, error) {
	a := Account(s)
	if _, ok := validAccounts[a]; !ok {
		return "", fmt.Errorf("invalid ledger account %q", s)
	}
	return a, nil
}

// Valid reports whether the account is part of the chart of accounts.
func (a Account) Valid() bool {
	_, ok := validAccounts[a]
	return ok
}

// String returns the account name.
func (a Account) String() string {
	return string(a)
}
