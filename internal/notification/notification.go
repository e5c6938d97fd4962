// Package notification delivers alert condition activations and deactivations
// to their consumers: the condition log, an MQTT broker and any subscribed handler.
package notification

import (
	"context"
	"fmt"
	"time"
)

// Kind tells whether a condition started or stopped matching.
type Kind string

const (
	KindActivate   Kind = "activate"
	KindDeactivate Kind = "deactivate"
)

// Notification is one signal emitted by the alert condition cache.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ConditionID uint      `json:"conditionId"`
	Timestamp   time.Time `json:"timestamp"`
	Value       any       `json:"value,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// ValueString renders the triggering value for storage.
func (n *Notification) ValueString() string {
	if n.Value == nil {
		return ""
	}
	if s, ok := n.Value.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(n.Value)
}

// Handler consumes notifications from the bus.
type Handler interface {
	Name() string
	Handle(ctx context.Context, n *Notification) error
}

// Metrics counts notification outcomes per handler.
type Metrics interface {
	ObserveNotification(sink, status string)
}

// Notification outcome labels.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

type nopMetrics struct{}

func (nopMetrics) ObserveNotification(string, string) {}
