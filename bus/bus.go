// Package bus distributes tool invocation events to subscribers and persists
// them to an optional journal. The dispatcher publishes through Observer; a
// StoreSubscriber drains a subscription into an EventStore.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event records one tool invocation outcome.
type Event struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Tool       string    `json:"tool"`
	Origin     string    `json:"origin,omitempty"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Time       time.Time `json:"time"`
}

// NewEvent creates an event for tool with a fresh ID and the current time.
func NewEvent(tool string) Event {
	return Event{
		ID:   uuid.NewString(),
		Tool: tool,
		Time: time.Now().UTC(),
	}
}

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event Event)

	// Subscribe registers a subscriber for events of one tool.
	// Returns a Subscription that must be closed when done.
	Subscribe(tool string) Subscription

	// SubscribeAll registers a subscriber that receives every event.
	// Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan Event

	// Close unsubscribes and releases resources.
	Close() error
}
