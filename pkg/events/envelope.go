// Package events carries the message envelope and outbox contracts shared by
// every pipeline stage. Inter-stage payloads are wrapped exactly once; a
// payload that already contains an envelope is a bug in the producer.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Known schema names. Decoders fail closed on anything not listed here.
const (
	SchemaPostingPayment     = "posting.payment.v1"
	SchemaPostingAccrual     = "posting.accrual.v1"
	SchemaPostingFee         = "posting.fee.v1"
	SchemaPostingLateFee     = "posting.late_fee.v1"
	SchemaPostingEscrow      = "posting.escrow.v1"
	SchemaPostingOrigination = "posting.origination.v1"
	SchemaPostingChargeOff   = "posting.chargeoff.v1"
	SchemaPostingReversal    = "posting.reversal.v1"

	SchemaEscrowDisbursement = "escrow.disbursement.v1"
	SchemaEscrowForecast     = "escrow.forecast.v1"

	SchemaPaymentReceived  = "payment.received.v1"
	SchemaPaymentValidated = "payment.validated.v1"
	SchemaPaymentPosted    = "payment.posted.v1"
	SchemaPaymentFailed    = "payment.failed.v1"

	SchemaCashStmtIngested = "cash.stmt.ingested.v1"
	SchemaCashReconciled   = "cash.reconciled.v1"

	SchemaLateFeeAssessed          = "latefee.assessed.v1"
	SchemaDelinquencyStatusChanged = "delinquency.status.changed.v1"
	SchemaForeclosureCaseOpened    = "foreclosure.case.opened.v1"
	SchemaForeclosureMilestoneHit  = "foreclosure.milestone.hit.v1"

	SchemaPaymentReversalRequested = "payment.reversal.requested.v1"

	SchemaServicingTask = "servicing.task.v1"
)

var knownSchemas = map[string]struct{}{
	SchemaPostingPayment:           {},
	SchemaPostingAccrual:           {},
	SchemaPostingFee:               {},
	SchemaPostingLateFee:           {},
	SchemaPostingEscrow:            {},
	SchemaPostingOrigination:       {},
	SchemaPostingChargeOff:         {},
	SchemaPostingReversal:          {},
	SchemaEscrowDisbursement:       {},
	SchemaEscrowForecast:           {},
	SchemaPaymentReceived:          {},
	SchemaPaymentValidated:         {},
	SchemaPaymentPosted:            {},
	SchemaPaymentFailed:            {},
	SchemaCashStmtIngested:         {},
	SchemaCashReconciled:           {},
	SchemaLateFeeAssessed:          {},
	SchemaDelinquencyStatusChanged: {},
	SchemaForeclosureCaseOpened:    {},
	SchemaForeclosureMilestoneHit:  {},
	SchemaPaymentReversalRequested: {},
	SchemaServicingTask:            {},
}

// KnownSchema reports whether the schema name is registered.
func KnownSchema(schema string) bool {
	_, ok := knownSchemas[schema]
	return ok
}

// Envelope is the canonical JSON wrapper for every inter-stage message.
type Envelope struct {
	MessageID     uuid.UUID       `json:"message_id"`
	Schema        string          `json:"schema"`
	CorrelationID string          `json:"correlation_id"`
	TraceID       string          `json:"trace_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Priority      int             `json:"priority"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload value in an envelope with a fresh message ID.
func NewEnvelope(schema, correlationID, traceID string, payload any) (Envelope, error) {
	if !KnownSchema(schema) {
		return Envelope{}, fmt.Errorf("unknown schema %q", schema)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %s: %w", schema, err)
	}
	return Envelope{
		MessageID:     uuid.New(),
		Schema:        schema,
		CorrelationID: correlationID,
		TraceID:       traceID,
		Timestamp:     time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// Encode serializes the envelope to JSON.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.MessageID, err)
	}
	return b, nil
}

// DecodeEnvelope parses an envelope and rejects unknown or missing schemas.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if e.Schema == "" {
		return Envelope{}, fmt.Errorf("envelope missing schema")
	}
	if !KnownSchema(e.Schema) {
		return Envelope{}, fmt.Errorf("unknown schema %q", e.Schema)
	}
	return e, nil
}

// DecodePayload unmarshals the wrapped payload into v.
func (e Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Schema, err)
	}
	return nil
}
