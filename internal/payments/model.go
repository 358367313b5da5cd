// Package payments implements the three-stage posting pipeline: intake,
// validation, and posting, each committing its rows and outbox entry in a
// single transaction. The outbox dispatcher drains committed entries to the
// broker with confirm-or-retry semantics.
package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// GatewayEvent is the raw payment notification from an upstream gateway.
type GatewayEvent struct {
	LoanID        uuid.UUID `json:"loan_id"`
	GatewayTxnID  string    `json:"gateway_txn_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	EffectiveDate string    `json:"effective_date"`
	Source        string    `json:"source"`
}

// IdempotencyKey derives the intake dedupe key from the fields that identify
// one real-world payment. Re-delivered gateway events hash identically.
func IdempotencyKey(loanID uuid.UUID, gatewayTxn string, amountMinor int64, currency, effectiveDate string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%s", loanID, gatewayTxn, amountMinor, currency, effectiveDate)))
	return hex.EncodeToString(h[:])
}

// CorrelationID is the ledger correlation for a posted payment.
func CorrelationID(loanID uuid.UUID, gatewayTxn string) string {
	return fmt.Sprintf("payment:loan:%s:gw:%s", loanID, gatewayTxn)
}

// PaymentIntake is the durable record of a received gateway event.
type PaymentIntake struct {
	PaymentID      uuid.UUID
	LoanID         uuid.UUID
	GatewayTxnID   string
	AmountMinor    int64
	Currency       string
	EffectiveDate  time.Time
	Source         string
	IdempotencyKey string
	ReceivedAt     time.Time
}

// ValidationStatus is the outcome of the validator stage.
type ValidationStatus string

const (
	ValidationPassed ValidationStatus = "passed"
	ValidationFailed ValidationStatus = "failed"
)

// PaymentType classifies a validated payment against the active schedule.
type PaymentType string

const (
	PaymentScheduled   PaymentType = "scheduled"
	PaymentOverpayment PaymentType = "overpayment"
	PaymentPartial     PaymentType = "partial"
)

// PaymentValidation records the validator's decision for one payment.
type PaymentValidation struct {
	PaymentID   uuid.UUID
	Status      ValidationStatus
	Reason      string
	RetryAfter  int64
	PaymentType PaymentType
	ValidatedAt time.Time
}

// PaymentPosting links a validated payment to its ledger event.
type PaymentPosting struct {
	PaymentID     uuid.UUID
	LedgerEventID uuid.UUID
	CorrelationID string
	PostedAt      time.Time
}

// ReceivedPayload is the payment.received.v1 payload.
type ReceivedPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	LoanID        uuid.UUID `json:"loan_id"`
	GatewayTxnID  string    `json:"gateway_txn_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	EffectiveDate string    `json:"effective_date"`
}

// ValidatedPayload is the payment.validated.v1 payload.
type ValidatedPayload struct {
	PaymentID   uuid.UUID   `json:"payment_id"`
	LoanID      uuid.UUID   `json:"loan_id"`
	PaymentType PaymentType `json:"payment_type,omitempty"`
}

// FailedPayload is the payment.failed.v1 payload.
type FailedPayload struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	LoanID     uuid.UUID `json:"loan_id"`
	Reason     string    `json:"reason"`
	RetryAfter int64     `json:"retry_after_seconds,omitempty"`
}

// PostedPayload is the payment.posted.v1 payload.
type PostedPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	LoanID        uuid.UUID `json:"loan_id"`
	LedgerEventID uuid.UUID `json:"ledger_event_id"`
	AmountMinor   int64     `json:"amount_minor"`
	CorrelationID string    `json:"correlation_id"`
}

// ParseEffectiveDate parses the gateway's date field.
func ParseEffectiveDate(s string) (time.Time, error) {
	d, err := money.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("effective date: %w", err)
	}
	return d, nil
}
