package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic names. Stage consumers and the dispatcher share this topology; each
// topic has a paired dead-letter topic derived by DeadLetterTopic.
const (
	TopicPaymentsGateway    = "payments.gateway"
	TopicPaymentsValidation = "payments.validation"
	TopicPaymentsSaga       = "payments.saga"
	TopicPaymentsEvents     = "payments.events"
	TopicPaymentsAudit      = "payments.audit"
	TopicPaymentsDLQ        = "payments.dlq"
	TopicEscrowSaga         = "escrow.saga"
	TopicEscrowEvents       = "escrow.events"
	TopicEscrowDLQ          = "escrow.dlq"
	TopicCashEvents         = "cash.events"
	TopicCashStatements     = "cash.statements"
	TopicACHReturns         = "ach.returns"
	TopicServicingCycle     = "servicing.cycle"
)

// DeadLetterTopic returns the dead-letter topic paired with a topic.
func DeadLetterTopic(topic string) string {
	switch topic {
	case TopicPaymentsGateway, TopicPaymentsValidation, TopicPaymentsSaga, TopicPaymentsEvents, TopicPaymentsAudit:
		return TopicPaymentsDLQ
	case TopicEscrowSaga, TopicEscrowEvents:
		return TopicEscrowDLQ
	default:
		return topic + ".dlq"
	}
}

// OutboxEntry is a pending outbound message committed atomically with the
// business write that caused it.
type OutboxEntry struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Topic        string
	Payload      []byte
	CreatedAt    time.Time
	PublishedAt  *time.Time
	AttemptCount int
	NextRetryAt  *time.Time
	LastError    string
}

// NewOutboxEntry builds an entry from an encoded envelope.
func NewOutboxEntry(eventID uuid.UUID, topic string, env Envelope) (OutboxEntry, error) {
	payload, err := env.Encode()
	if err != nil {
		return OutboxEntry{}, err
	}
	return OutboxEntry{
		ID:        uuid.New(),
		EventID:   eventID,
		Topic:     topic,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Publisher publishes encoded envelopes to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, payload []byte) error
}
