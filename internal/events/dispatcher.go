package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher publishes events in the background so that request handling
// never waits on the broker
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	timeout   time.Duration
	logger    *zap.Logger
	done      chan struct{}
}

// NewDispatcher creates a dispatcher buffering up to size events
func NewDispatcher(publisher Publisher, size int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, size),
		timeout:   timeout,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Emit queues e. When the queue is full the event is dropped.
func (d *Dispatcher) Emit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("Event queue full, dropping event",
			zap.String("type", e.Type),
			zap.Int("alertID", e.AlertID))
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left with a fresh deadline
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.publish(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-d.queue:
					d.publish(e)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) publish(e Event) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.logger.Error("Failed to dispatch event", zap.String("type", e.Type), zap.Error(err))
	}
}
