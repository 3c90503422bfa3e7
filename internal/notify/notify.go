// Package notify implements best-effort, fire-and-forget emission of
// domain events after successful mutations. Delivery is at most once and
// outside the mutation's durability contract: failures are logged and
// swallowed, never surfaced to the mutating caller.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xSifu/ioh-stories/internal/model"
)

// Publisher delivers a single event to the underlying channel.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Dispatcher is a bounded outbound mailbox drained by a single worker
// goroutine. The mutation path only enqueues and never awaits delivery.
type Dispatcher struct {
	pub     Publisher
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan model.Event
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the mailbox capacity. Events arriving while the
// mailbox is full are dropped.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan model.Event, n)
		}
	}
}

// WithPublishTimeout bounds each delivery attempt.
func WithPublishTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher starts a dispatcher draining into pub.
func NewDispatcher(pub Publisher, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pub:     pub,
		logger:  logger,
		timeout: defaultPublishTimeout,
		queue:   make(chan model.Event, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.drain()
	return d
}

// Emit enqueues an event for delivery. It never blocks and never errors:
// a full mailbox or a closed dispatcher drops the event with a log line.
func (d *Dispatcher) Emit(event model.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("event dropped, dispatcher closed", zap.String("kind", event.Kind))
		return
	}
	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event dropped, mailbox full", zap.String("kind", event.Kind))
	}
}

// Dropped reports how many events were discarded without a delivery attempt.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events, drains the mailbox and waits for the
// worker to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	defer d.wg.Done()
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.pub.Publish(ctx, event)
		cancel()
		if err != nil {
			d.logger.Error("notification publish failed",
				zap.String("kind", event.Kind),
				zap.Stringer("userId", event.UserID),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("notification sent",
			zap.String("kind", event.Kind),
			zap.Stringer("userId", event.UserID),
		)
	}
}
