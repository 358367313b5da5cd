// Package ach originates NACHA files for scheduled drafts and disbursements
// and processes return entries against them.
package ach

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBatchNotOpen    = errors.New("ach batch is not open")
	ErrBatchNotSealed  = errors.New("ach batch is not sealed")
	ErrBatchNotFound   = errors.New("ach batch not found")
	ErrEntryNotFound   = errors.New("ach entry not found")
	ErrInvalidRouting  = errors.New("invalid routing number")
	ErrInvalidTxnCode  = errors.New("invalid transaction code")
	ErrEmptyBatch      = errors.New("ach batch has no entries")
	ErrBadStatusChange = errors.New("invalid ach batch status transition")
)

// BatchStatus is the origination lifecycle. Entries are mutable only while
// open; sealing freezes totals and assigns trace numbers.
type BatchStatus string

const (
	BatchOpen    BatchStatus = "open"
	BatchSealed  BatchStatus = "sealed"
	BatchFiled   BatchStatus = "filed"
	BatchSettled BatchStatus = "settled"
	BatchFailed  BatchStatus = "failed"
)

// Transaction codes for demand and savings accounts.
const (
	TxnCheckingCredit = 22
	TxnCheckingDebit  = 27
	TxnSavingsCredit  = 32
	TxnSavingsDebit   = 37
)

// SECCode is the standard entry class of a batch.
type SECCode string

const (
	SECPPD SECCode = "PPD"
	SECCCD SECCode = "CCD"
)

// IsDebit reports whether the transaction code pulls funds.
func IsDebit(txnCode int) bool {
	return txnCode == TxnCheckingDebit || txnCode == TxnSavingsDebit
}

func validTxnCode(code int) bool {
	switch code {
	case TxnCheckingCredit, TxnCheckingDebit, TxnSavingsCredit, TxnSavingsDebit:
		return true
	}
	return false
}

// Entry is one detail record. The trace number is empty until the batch
// seals.
type Entry struct {
	ID             uuid.UUID
	BatchID        uuid.UUID
	LoanID         *uuid.UUID
	TxnCode        int
	RDFIRouting    string
	AccountNumber  string
	AmountMinor    int64
	IndividualName string
	TraceNumber    string
}

// Batch is one NACHA batch moving through origination.
type Batch struct {
	ID               uuid.UUID
	BatchNumber      int
	CompanyName      string
	CompanyID        string
	SEC              SECCode
	Description      string
	EffectiveDate    time.Time
	Status           BatchStatus
	Entries          []Entry
	TotalDebitMinor  int64
	TotalCreditMinor int64
	EntryHash        int64
	CreatedAt        time.Time
	SealedAt         *time.Time
}

// NewBatch opens an empty batch for the given settlement date.
func NewBatch(batchNumber int, companyName, companyID string, sec SECCode, description string, effectiveDate time.Time) (Batch, error) {
	if companyName == "" || companyID == "" {
		return Batch{}, fmt.Errorf("company name and id are required")
	}
	if sec != SECPPD && sec != SECCCD {
		return Batch{}, fmt.Errorf("unsupported SEC code %q", sec)
	}
	if effectiveDate.IsZero() {
		return Batch{}, fmt.Errorf("effective date is required")
	}
	return Batch{
		ID:            uuid.New(),
		BatchNumber:   batchNumber,
		CompanyName:   companyName,
		CompanyID:     companyID,
		SEC:           sec,
		Description:   description,
		EffectiveDate: effectiveDate,
		Status:        BatchOpen,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// AddEntry appends a detail record. Only open batches accept entries.
func (b Batch) AddEntry(e Entry) (Batch, error) {
	if b.Status != BatchOpen {
		return Batch{}, fmt.Errorf("%w: batch %s is %s", ErrBatchNotOpen, b.ID, b.Status)
	}
	if !validTxnCode(e.TxnCode) {
		return Batch{}, fmt.Errorf("%w: %d", ErrInvalidTxnCode, e.TxnCode)
	}
	if !validRouting(e.RDFIRouting) {
		return Batch{}, fmt.Errorf("%w: %q", ErrInvalidRouting, e.RDFIRouting)
	}
	if e.AccountNumber == "" {
		return Batch{}, fmt.Errorf("account number is required")
	}
	if e.AmountMinor <= 0 {
		return Batch{}, fmt.Errorf("entry amount must be positive, got %d", e.AmountMinor)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.BatchID = b.ID
	e.TraceNumber = ""

	out := b
	out.Entries = append(append([]Entry(nil), b.Entries...), e)
	return out, nil
}

// Seal freezes the batch: trace numbers are assigned from the ODFI routing
// and a running sequence, and the control totals are computed. A sealed
// batch never changes again.
func (b Batch) Seal(odfiRouting string, now time.Time) (Batch, error) {
	if b.Status != BatchOpen {
		return Batch{}, fmt.Errorf("%w: batch %s is %s", ErrBatchNotOpen, b.ID, b.Status)
	}
	if len(b.Entries) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	if !validRouting(odfiRouting) {
		return Batch{}, fmt.Errorf("%w: odfi %q", ErrInvalidRouting, odfiRouting)
	}

	out := b
	out.Entries = append([]Entry(nil), b.Entries...)
	for i := range out.Entries {
		out.Entries[i].TraceNumber = fmt.Sprintf("%s%07d", odfiRouting[:8], i+1)
		if IsDebit(out.Entries[i].TxnCode) {
			out.TotalDebitMinor += out.Entries[i].AmountMinor
		} else {
			out.TotalCreditMinor += out.Entries[i].AmountMinor
		}
	}
	out.EntryHash = entryHash(out.Entries)
	out.Status = BatchSealed
	sealedAt := now.UTC()
	out.SealedAt = &sealedAt
	return out, nil
}

// MarkFiled records that the batch went out in a generated file.
func (b Batch) MarkFiled() (Batch, error) {
	return b.transition(BatchSealed, BatchFiled)
}

// MarkSettled records confirmation from the ODFI.
func (b Batch) MarkSettled() (Batch, error) {
	return b.transition(BatchFiled, BatchSettled)
}

// MarkFailed records a batch-level rejection.
func (b Batch) MarkFailed() (Batch, error) {
	if b.Status != BatchSealed && b.Status != BatchFiled {
		return Batch{}, fmt.Errorf("%w: %s -> %s", ErrBadStatusChange, b.Status, BatchFailed)
	}
	out := b
	out.Status = BatchFailed
	return out, nil
}

func (b Batch) transition(from, to BatchStatus) (Batch, error) {
	if b.Status != from {
		return Batch{}, fmt.Errorf("%w: %s -> %s", ErrBadStatusChange, b.Status, to)
	}
	out := b
	out.Status = to
	return out, nil
}

// entryHash sums the first eight digits of each receiving routing number,
// keeping the low ten digits per the file control record format.
func entryHash(entries []Entry) int64 {
	var sum int64
	for _, e := range entries {
		n, _ := strconv.ParseInt(e.RDFIRouting[:8], 10, 64)
		sum += n
	}
	return sum % 10_000_000_000
}

// validRouting accepts a nine-digit ABA routing number.
func validRouting(r string) bool {
	if len(r) != 9 {
		return false
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// MaskAccount keeps the last four digits for logs and events.
func MaskAccount(account string) string {
	if len(account) <= 4 {
		return "****"
	}
	return "****" + account[len(account)-4:]
}
