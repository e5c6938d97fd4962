package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// streamBuffer is the per-subscriber channel size.
const streamBuffer = 10

// Stream fans notifications out to live subscribers such as SSE clients.
// A subscriber whose buffer is full misses the notification.
type Stream struct {
	mu      sync.RWMutex
	subs    map[string]chan *Notification
	metrics Metrics
}

// NewStream creates an empty stream. Subscribe it to a Bus to feed it.
func NewStream(metrics Metrics) *Stream {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Stream{subs: make(map[string]chan *Notification), metrics: metrics}
}

// Name implements Handler.
func (s *Stream) Name() string { return "stream" }

// Handle implements Handler.
func (s *Stream) Handle(_ context.Context, n *Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- n:
		default:
			s.metrics.ObserveNotification("stream", StatusDropped)
		}
	}
	return nil
}

// Subscribe registers a subscriber and returns its id and channel. The channel
// is closed by Unsubscribe.
func (s *Stream) Subscribe() (string, <-chan *Notification) {
	id := uuid.New().String()
	ch := make(chan *Notification, streamBuffer)
	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (s *Stream) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
