package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwatch/fleetwatch/internal/logger"
)

var (
	// ErrBufferFull is returned when a notification is dropped because the bus is saturated.
	ErrBufferFull = errors.New("notification buffer full")
	// ErrBusStopped is returned for notifications published after Stop.
	ErrBusStopped = errors.New("notification bus stopped")
)

const (
	// defaultBufferSize is the capacity of the async notification channel.
	defaultBufferSize = 1000
	// handleTimeout bounds a single handler invocation.
	handleTimeout = 10 * time.Second
)

// Bus is an async fan-out of cache signals. Activate and Deactivate never block:
// notifications go to a buffered channel drained by one worker goroutine, so the
// cache's evaluation path is never held up by database writes or broker round trips.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
	ch       chan *Notification
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	metrics  Metrics
	log      logger.Logger
}

// NewBus creates a bus and starts its worker. A non-positive bufferSize uses the default.
func NewBus(bufferSize int, metrics Metrics, log logger.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	b := &Bus{
		ch:      make(chan *Notification, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		metrics: metrics,
		log:     log.Module("notification"),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler. Handlers run in registration order.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Activate implements alertcache.Sink. A string first extra value becomes the detail.
func (b *Bus) Activate(conditionID uint, timestamp time.Time, value any, extra ...any) error {
	n := &Notification{Kind: KindActivate, ConditionID: conditionID, Timestamp: timestamp, Value: value}
	if len(extra) > 0 {
		if detail, ok := extra[0].(string); ok {
			n.Detail = detail
		}
	}
	return b.Publish(n)
}

// Deactivate implements alertcache.Sink.
func (b *Bus) Deactivate(conditionID uint, timestamp time.Time) error {
	return b.Publish(&Notification{Kind: KindDeactivate, ConditionID: conditionID, Timestamp: timestamp})
}

// Publish enqueues a notification without blocking.
func (b *Bus) Publish(n *Notification) error {
	select {
	case <-b.stopCh:
		return ErrBusStopped
	default:
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	select {
	case b.ch <- n:
		return nil
	default:
		b.metrics.ObserveNotification("bus", StatusDropped)
		return fmt.Errorf("%w: condition %d %s", ErrBufferFull, n.ConditionID, n.Kind)
	}
}

// Stop drains queued notifications and waits for the worker to exit. Safe to call multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.done
}

func (b *Bus) processLoop() {
	defer close(b.done)
	for {
		select {
		case n := <-b.ch:
			b.dispatch(n)
		case <-b.stopCh:
			for {
				select {
				case n := <-b.ch:
					b.dispatch(n)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(n *Notification) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := b.safeCall(h, n); err != nil {
			b.metrics.ObserveNotification(h.Name(), StatusFailed)
			b.log.Error("notification handler failed",
				logger.String("handler", h.Name()),
				logger.String("notification_id", n.ID),
				logger.Uint64("condition_id", uint64(n.ConditionID)),
				logger.Error(err))
			continue
		}
		b.metrics.ObserveNotification(h.Name(), StatusDelivered)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *Bus) safeCall(h Handler, n *Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	return h.Handle(ctx, n)
}
