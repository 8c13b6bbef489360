// Package events publishes alert lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/model"
)

// Event types
const (
	TypeAlertCreated  = "alert.created"
	TypeAlertUpdated  = "alert.updated"
	TypeAlertDeleted  = "alert.deleted"
	TypeAlertRejected = "alert.rejected"
)

// Event describes a change made to an alert through the composer
type Event struct {
	Type       string          `json:"type"`
	AlertID    int             `json:"alert_id,omitempty"`
	AlertType  model.AlertType `json:"alert_type,omitempty"`
	Stock      string          `json:"stock,omitempty"`
	Owner      string          `json:"owner"`
	Conditions int             `json:"conditions,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher sends events somewhere
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Writer is the subset of *kafka.Writer the publisher uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka publisher
type Config struct {
	Brokers  []string
	ClientID string
	// Topics maps event types to topics; unmapped types go to DefaultTopic
	Topics       map[string]string
	DefaultTopic string
	MaxRetries   uint64
	RetryBackoff time.Duration
}

// KafkaPublisher publishes events as JSON messages keyed by alert id
type KafkaPublisher struct {
	config    Config
	mu        sync.Mutex
	writers   map[string]Writer
	newWriter func(topic string) Writer
	logger    *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to config.Brokers
func NewKafkaPublisher(config Config, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		config:  config,
		writers: make(map[string]Writer),
		logger:  logger,
	}
	p.newWriter = func(topic string) Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			Transport: &kafka.Transport{
				ClientID: config.ClientID,
			},
		}
	}
	return p
}

func (p *KafkaPublisher) topic(eventType string) string {
	if t, ok := p.config.Topics[eventType]; ok && t != "" {
		return t
	}
	return p.config.DefaultTopic
}

// getWriter returns the writer for topic, creating it on first use
func (p *KafkaPublisher) getWriter(topic string) Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

func (p *KafkaPublisher) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.config.RetryBackoff > 0 {
		b.InitialInterval = p.config.RetryBackoff
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.config.MaxRetries), ctx)
}

// Publish writes e to its topic, retrying transient failures with
// exponential backoff
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	topic := p.topic(e.Type)
	writer := p.getWriter(topic)

	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("topic", topic),
			zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(e.AlertID)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.OccurredAt,
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Warn("Failed to publish event",
				zap.String("topic", topic),
				zap.String("type", e.Type),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	}, p.retryPolicy(ctx))
	if err != nil {
		p.logger.Error("Giving up on event",
			zap.String("topic", topic),
			zap.String("type", e.Type),
			zap.Int("alertID", e.AlertID),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Event published",
		zap.String("topic", topic),
		zap.String("type", e.Type),
		zap.Int("alertID", e.AlertID))
	return nil
}

// Close closes all Kafka writers
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
	return nil
}

// NoopPublisher drops every event. It is used when no brokers are configured.
type NoopPublisher struct{}

// Publish implements Publisher
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (NoopPublisher) Close() error { return nil }
