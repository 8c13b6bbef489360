package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/model"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(cfg Config) (*KafkaPublisher, map[string]*fakeWriter) {
	p := NewKafkaPublisher(cfg, zap.NewNop())
	writers := map[string]*fakeWriter{}
	p.newWriter = func(topic string) Writer {
		w := &fakeWriter{}
		writers[topic] = w
		return w
	}
	return p, writers
}

func TestPublishRoutesByType(t *testing.T) {
	p, writers := newTestPublisher(Config{
		DefaultTopic: "alerts",
		Topics:       map[string]string{TypeAlertRejected: "alerts.rejected"},
	})

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeAlertCreated, AlertID: 7, AlertType: model.AlertTypePrice, Owner: "u1"}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeAlertRejected, Owner: "u1"}))

	require.Len(t, writers["alerts"].messages, 1)
	require.Len(t, writers["alerts.rejected"].messages, 1)

	msg := writers["alerts"].messages[0]
	assert.Equal(t, "7", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(TypeAlertCreated)}}, msg.Headers)

	var e Event
	require.NoError(t, json.Unmarshal(msg.Value, &e))
	assert.Equal(t, model.AlertTypePrice, e.AlertType)

	require.NoError(t, p.Close())
	assert.True(t, writers["alerts"].closed)
}

func TestPublishRetries(t *testing.T) {
	p, writers := newTestPublisher(Config{DefaultTopic: "alerts", MaxRetries: 3, RetryBackoff: time.Millisecond})
	p.getWriter("alerts")
	writers["alerts"].failures = 2

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeAlertDeleted, AlertID: 1}))
	assert.Len(t, writers["alerts"].messages, 1)
}

func TestPublishGivesUp(t *testing.T) {
	p, writers := newTestPublisher(Config{DefaultTopic: "alerts", MaxRetries: 1, RetryBackoff: time.Millisecond})
	p.getWriter("alerts")
	writers["alerts"].failures = 5

	assert.Error(t, p.Publish(context.Background(), Event{Type: TypeAlertDeleted, AlertID: 1}))
	assert.Equal(t, 3, writers["alerts"].failures)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	rec := &recordingPublisher{}
	d := NewDispatcher(rec, 10, time.Second, zap.NewNop())

	d.Emit(Event{Type: TypeAlertCreated, AlertID: 1})
	d.Emit(Event{Type: TypeAlertUpdated, AlertID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	<-d.Done()
	require.Len(t, rec.events, 2)
	assert.False(t, rec.events[0].OccurredAt.IsZero())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &recordingPublisher{}
	d := NewDispatcher(rec, 1, 0, zap.NewNop())

	d.Emit(Event{Type: TypeAlertCreated, AlertID: 1})
	d.Emit(Event{Type: TypeAlertCreated, AlertID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	require.Len(t, rec.events, 1)
	assert.Equal(t, 1, rec.events[0].AlertID)
}
