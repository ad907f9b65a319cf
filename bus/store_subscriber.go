package bus

import (
	"context"
	"log/slog"
)

// StoreSubscriber writes events to an EventStore.
type StoreSubscriber struct {
	store  EventStore
	logger *slog.Logger
}

// NewStoreSubscriber creates a new StoreSubscriber.
func NewStoreSubscriber(store EventStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:  store,
		logger: logger,
	}
}

// Handle persists a single event. Failures are logged, never returned.
func (s *StoreSubscriber) Handle(event Event) {
	if err := s.store.Append(context.Background(), event); err != nil {
		s.logger.Error("failed to persist invocation event",
			"id", event.ID,
			"tool", event.Tool,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// Drain handles events from sub until its channel is closed.
func (s *StoreSubscriber) Drain(sub Subscription) {
	for event := range sub.Events() {
		s.Handle(event)
	}
}
