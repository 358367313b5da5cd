package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Handler processes a consumed Kafka message.
type Handler func(ctx context.Context, msg Message) error

// headerAttempt carries the delivery attempt count into the dead-letter topic.
const headerAttempt = "x-delivery-attempt"

// permanentError marks a handler failure that must not be retried.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer routes the message straight to the
// dead-letter topic instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// ConsumerOptions bound a consumer's in-flight work and retry behavior.
type ConsumerOptions struct {
	// MaxInFlight is the number of messages processed concurrently per fetch
	// batch (the prefetch analog). Defaults to 1.
	MaxInFlight int
	// MessageTimeout bounds a single handler invocation. Zero means no limit.
	MessageTimeout time.Duration
	// DeliveryLimit is the number of attempts before dead-lettering. Defaults to 6.
	DeliveryLimit int
	// DeadLetterTopic receives messages that exhausted their delivery limit or
	// failed permanently. Empty disables dead-lettering (failures are dropped
	// after logging).
	DeadLetterTopic string
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 1
	}
	if o.DeliveryLimit <= 0 {
		o.DeliveryLimit = 6
	}
	return o
}

// Consumer wraps a kafka-go reader. Each fetched batch is processed with
// bounded concurrency; transient handler errors are retried with exponential
// backoff up to the delivery limit, then routed to the dead-letter topic.
// Offsets are committed only after every message in the batch is resolved,
// preserving at-least-once delivery.
type Consumer struct {
	reader     *kafkago.Reader
	handler    Handler
	deadLetter *Producer
	opts       ConsumerOptions
	logger     *slog.Logger
}

// NewConsumer creates a new Consumer for the given topic with the provided handler.
func NewConsumer(cfg Config, topic string, handler Handler, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	readerCfg := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10 * 1024 * 1024, // 10 MB
		// Reconnect/backoff ceiling for broker outages.
		MaxAttempts: 3,
	}

	// Configure dialer for TLS and SASL authentication.
	if cfg.TLS || cfg.SASLEnabled {
		dialer := &kafkago.Dialer{}

		if cfg.TLS {
			dialer.TLS = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		if cfg.SASLEnabled {
			dialer.SASLMechanism = resolveConsumerSASL(cfg)
		}

		readerCfg.Dialer = dialer
	}

	return &Consumer{
		reader:     kafkago.NewReader(readerCfg),
		handler:    handler,
		deadLetter: NewProducer(cfg),
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// resolveConsumerSASL returns the appropriate SASL mechanism for the consumer.
func resolveConsumerSASL(cfg Config) sasl.Mechanism {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		m, err := scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil
		}
		return m
	case "SCRAM-SHA-512":
		m, err := scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil
		}
		return m
	case "PLAIN", "":
		return &plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}
	default:
		return nil
	}
}

// Start begins consuming messages. Blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer starting",
		"topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID,
		"max_in_flight", c.opts.MaxInFlight,
	)

	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer stopping due to context cancellation")
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}

		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(m kafkago.Message) {
				defer wg.Done()
				c.process(ctx, m)
			}(batch[i])
		}
		wg.Wait()

		if err := c.reader.CommitMessages(ctx, batch...); err != nil {
			c.logger.Error("commit error", "topic", c.reader.Config().Topic, "error", err)
		}
	}
}

// fetchBatch fetches up to MaxInFlight messages, blocking for the first.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafkago.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafkago.Message{first}

	for len(batch) < c.opts.MaxInFlight {
		fetchCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			break
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// process runs the handler with retry and dead-letter routing. It returns
// only when the message is resolved one way or the other.
func (c *Consumer) process(ctx context.Context, m kafkago.Message) {
	msg := Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.DeliveryLimit; attempt++ {
		handlerCtx := ctx
		var cancel context.CancelFunc
		if c.opts.MessageTimeout > 0 {
			handlerCtx, cancel = context.WithTimeout(ctx, c.opts.MessageTimeout)
		}
		err := c.handler(handlerCtx, msg)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil {
			break
		}

		c.logger.Warn("handler retry",
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffDelay(attempt)):
		}
	}

	c.deadLetterMessage(ctx, m, msg, lastErr)
}

// backoffDelay is 2^attempt seconds capped at 16 s.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 16*time.Second {
		d = 16 * time.Second
	}
	return d
}

func (c *Consumer) deadLetterMessage(ctx context.Context, m kafkago.Message, msg Message, cause error) {
	if c.opts.DeadLetterTopic == "" {
		c.logger.Error("dropping message without dead-letter topic",
			"topic", m.Topic, "offset", m.Offset, "error", cause)
		return
	}

	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[headerAttempt] = strconv.Itoa(c.opts.DeliveryLimit)
	if cause != nil {
		headers["x-death-reason"] = cause.Error()
	}

	if err := c.deadLetter.Publish(ctx, c.opts.DeadLetterTopic, Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}); err != nil {
		c.logger.Error("dead-letter publish failed",
			"topic", m.Topic, "dlq", c.opts.DeadLetterTopic, "offset", m.Offset, "error", err)
		return
	}

	c.logger.Error("message dead-lettered",
		"topic", m.Topic, "dlq", c.opts.DeadLetterTopic, "offset", m.Offset, "error", cause)
}

// Close closes the reader and the dead-letter producer.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return c.deadLetter.Close()
}
