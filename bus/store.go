package bus

import (
	"context"
	"time"
)

// ListFilter narrows EventStore.List results.
type ListFilter struct {
	// Tool restricts results to one tool (empty means all tools).
	Tool string
	// Since drops events older than this time (zero means no lower bound).
	Since time.Time
	// Limit caps the number of events returned (0 means no limit).
	Limit int
}

// EventStore persists invocation events.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event Event) error

	// List returns matching events, newest first.
	List(ctx context.Context, filter ListFilter) ([]Event, error)
}
