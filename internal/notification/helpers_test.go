package notification

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewZerologLogger(io.Discard, logger.LogLevelError)
}

// collectHandler records notifications and optionally blocks or fails.
type collectHandler struct {
	name    string
	mu      sync.Mutex
	got     []*Notification
	err     error
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newCollectHandler(name string) *collectHandler {
	return &collectHandler{name: name, started: make(chan struct{})}
}

func (h *collectHandler) Name() string { return h.name }

func (h *collectHandler) Handle(_ context.Context, n *Notification) error {
	h.once.Do(func() { close(h.started) })
	if h.release != nil {
		<-h.release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, n)
	return h.err
}

func (h *collectHandler) received() []*Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Notification, len(h.got))
	copy(out, h.got)
	return out
}

type panicHandler struct{}

func (panicHandler) Name() string                                { return "panic" }
func (panicHandler) Handle(context.Context, *Notification) error { panic("handler exploded") }

// countingMetrics records ObserveNotification calls.
type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: map[string]int{}}
}

func (m *countingMetrics) ObserveNotification(sink, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[sink+"/"+status]++
}

func (m *countingMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
