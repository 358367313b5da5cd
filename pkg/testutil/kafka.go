package testutil

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// pipelineTopics are created up front so stage consumers and tests never
// race broker topic auto-creation.
var pipelineTopics = []string{
	events.TopicPaymentsValidation,
	events.TopicPaymentsSaga,
	events.TopicPaymentsEvents,
	events.TopicPaymentsAudit,
	events.TopicPaymentsDLQ,
}

// KafkaContainer wraps a testcontainers Kafka broker with the servicing
// pipeline's topics created.
type KafkaContainer struct {
	Container *kafka.KafkaContainer
	Brokers   []string
}

// NewKafkaContainer starts a broker and creates the pipeline topics.
// The caller should defer container.Cleanup(t).
func NewKafkaContainer(ctx context.Context, t *testing.T) *KafkaContainer {
	t.Helper()

	kafkaContainer, err := kafka.RunContainer(ctx,
		testcontainers.WithImage("confluentinc/confluent-local:7.6.1"),
		kafka.WithClusterID("loanserve-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	kc := &KafkaContainer{
		Container: kafkaContainer,
		Brokers:   brokers,
	}
	kc.createTopics(t)
	return kc
}

// createTopics provisions the pipeline topics on the controller broker.
func (kc *KafkaContainer) createTopics(t *testing.T) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", kc.Brokers[0])
	if err != nil {
		t.Fatalf("failed to dial kafka broker: %v", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		t.Fatalf("failed to resolve kafka controller: %v", err)
	}
	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		t.Fatalf("failed to dial kafka controller: %v", err)
	}
	defer controllerConn.Close()

	configs := make([]kafkago.TopicConfig, 0, len(pipelineTopics))
	for _, topic := range pipelineTopics {
		configs = append(configs, kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		t.Fatalf("failed to create pipeline topics: %v", err)
	}
}

// ReadOne consumes a single message from a topic, failing the test when
// none arrives before the timeout.
func (kc *KafkaContainer) ReadOne(t *testing.T, topic string, timeout time.Duration) kafkago.Message {
	t.Helper()

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     kc.Brokers,
		Topic:       topic,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     time.Second,
	})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m, err := r.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("failed to read message from %s: %v", topic, err)
	}
	return m
}

// Cleanup terminates the container.
func (kc *KafkaContainer) Cleanup(t *testing.T) {
	t.Helper()

	if kc.Container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := kc.Container.Terminate(ctx); err != nil {
			t.Logf("warning: failed to terminate kafka container: %v", err)
		}
	}
}
