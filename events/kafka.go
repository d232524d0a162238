package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts defaults to 3.
	MaxAttempts int
	// WriteTimeout is per attempt and defaults to 5s.
	WriteTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to one topic, keyed by Event.Key.
type KafkaPublisher struct {
	writer       messageWriter
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
}

// NewKafkaPublisher creates a publisher backed by a kafka-go Writer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, cfg), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &KafkaPublisher{
		writer:       w,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		backoff:      100 * time.Millisecond,
	}
}

// Publish writes e, retrying with exponential backoff.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		lastErr = p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("kafka: publish %s after %d attempts: %w", e.Type, p.maxAttempts, lastErr)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
