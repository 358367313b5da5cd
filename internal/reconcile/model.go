// Package reconcile ingests bank statements, scores ledger candidates for
// each bank transaction, auto-matches confident pairs, and tracks exceptions
// for the rest.
package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// TxnType classifies a bank statement transaction.
type TxnType string

const (
	TxnCredit TxnType = "credit"
	TxnDebit  TxnType = "debit"
	TxnFee    TxnType = "fee"
	TxnReturn TxnType = "return"
)

// TxnStatus is the reconciliation state of a bank transaction.
type TxnStatus string

const (
	TxnUnmatched TxnStatus = "unmatched"
	TxnMatched   TxnStatus = "matched"
)

// StatementFormat names a supported statement file format.
type StatementFormat string

const (
	FormatBAI2    StatementFormat = "bai2"
	FormatCAMT053 StatementFormat = "camt053"
)

// StatementFile is an ingested statement, deduplicated by content hash.
type StatementFile struct {
	ID         uuid.UUID
	Format     StatementFormat
	SHA256     string
	TxnCount   int
	IngestedAt time.Time
}

// BankTxn is one statement line normalized across formats.
type BankTxn struct {
	ID             uuid.UUID
	StatementID    uuid.UUID
	Account        string
	PostedDate     time.Time
	AmountMinor    int64
	Type           TxnType
	BankRef        string
	Description    string
	Status         TxnStatus
	MatchedEventID *uuid.UUID
}

// SignedAmountMinor orients the statement amount around the cash account:
// credits add cash, debit-side types (debit, fee, return) remove it.
func (t BankTxn) SignedAmountMinor() int64 {
	switch t.Type {
	case TxnDebit, TxnFee, TxnReturn:
		return -t.AmountMinor
	}
	return t.AmountMinor
}

// Candidate is a scored ledger event for a bank transaction.
type Candidate struct {
	BankTxnID     uuid.UUID
	EventID       uuid.UUID
	CorrelationID string
	NetMinor      int64
	Score         int
}

// ExceptionStatus is the lifecycle of a reconciliation exception.
type ExceptionStatus string

const (
	ExceptionNew           ExceptionStatus = "new"
	ExceptionInvestigating ExceptionStatus = "investigating"
	ExceptionResolved      ExceptionStatus = "resolved"
	ExceptionWrittenOff    ExceptionStatus = "written_off"
)

// Exception is an unmatched bank transaction awaiting operator action.
type Exception struct {
	ID            uuid.UUID
	BankTxnID     uuid.UUID
	VarianceMinor int64
	Status        ExceptionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
