// Package ledger implements the append-only double-entry general ledger.
// Every monetary mutation is a balanced event with two or more entry lines;
// balances are always derived by summing finalized entries, never stored.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for posting invariants. These are fatal per message: the
// transaction rolls back and the consumer dead-letters instead of retrying.
var (
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")
	ErrUnbalanced           = errors.New("event debits do not equal credits")
	ErrInvalidLine          = errors.New("invalid entry line")
	ErrEventNotFound        = errors.New("ledger event not found")
)

// Line is one entry of an event. Exactly one of DebitMinor and CreditMinor is
// positive; negative amounts never appear.
type Line struct {
	Account     Account
	DebitMinor  int64
	CreditMinor int64
	Currency    string
	Memo        string
}

// Validate enforces the per-line contract.
func (l Line) Validate() error {
	if !l.Account.Valid() {
		return fmt.Errorf("%w: unknown account %q", ErrInvalidLine, l.Account)
	}
	if l.DebitMinor < 0 || l.CreditMinor < 0 {
		return fmt.Errorf("%w: negative amount on %s", ErrInvalidLine, l.Account)
	}
	if l.DebitMinor > 0 && l.CreditMinor > 0 {
		return fmt.Errorf("%w: both debit and credit set on %s", ErrInvalidLine, l.Account)
	}
	if l.DebitMinor == 0 && l.CreditMinor == 0 {
		return fmt.Errorf("%w: zero amount on %s", ErrInvalidLine, l.Account)
	}
	return nil
}

// Debit builds a debit line.
func Debit(account Account, minor int64, currency, memo string) Line {
	return Line{Account: account, DebitMinor: minor, Currency: currency, Memo: memo}
}

// Credit builds a credit line.
func Credit(account Account, minor int64, currency, memo string) Line {
	return Line{Account: account, CreditMinor: minor, Currency: currency, Memo: memo}
}

// Event is a finalized (or in-flight) balanced ledger event.
type Event struct {
	EventID       uuid.UUID
	LoanID        uuid.UUID
	EffectiveDate time.Time
	Schema        string
	CorrelationID string
	Lines         []Line
	FinalizedAt   *time.Time
	CreatedAt     time.Time
}

// PostRequest describes an event to post.
type PostRequest struct {
	LoanID        uuid.UUID
	EffectiveDate time.Time
	CorrelationID string
	Schema        string
	Currency      string
	Lines         []Line
}

// Validate checks every line and the balance invariant before any write.
// The same checks run again inside the finalize procedure.
func (r PostRequest) Validate() error {
	if r.CorrelationID == "" {
		return fmt.Errorf("%w: correlation id is required", ErrInvalidLine)
	}
	if r.Schema == "" {
		return fmt.Errorf("%w: schema is required", ErrInvalidLine)
	}
	if r.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrInvalidLine)
	}
	if len(r.Lines) < 2 {
		return fmt.Errorf("%w: at least two lines are required", ErrUnbalanced)
	}

	var debits, credits int64
	for _, l := range r.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
		debits += l.DebitMinor
		credits += l.CreditMinor
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalanced, debits, credits)
	}
	if debits == 0 {
		return fmt.Errorf("%w: event sums to zero", ErrUnbalanced)
	}
	return nil
}

// Balances are the ledger-derived per-loan balances the pipeline reads.
// Each value is sum(debit) - sum(credit) over finalized entries.
type Balances struct {
	Principal          int64
	InterestReceivable int64
	EscrowLiability    int64
	FeesReceivable     int64
	Cash               int64
}

// TrialBalanceRow aggregates one account over all finalized entries.
type TrialBalanceRow struct {
	Account     Account
	DebitMinor  int64
	CreditMinor int64
}
