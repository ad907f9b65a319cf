package bus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStoreSubscriber_PersistsEvents(t *testing.T) {
	store := newTestStore(t)
	sub := NewStoreSubscriber(store, slog.Default())

	for range 3 {
		sub.Handle(NewEvent("echo"))
	}

	events, err := store.List(context.Background(), ListFilter{Tool: "echo"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error {
	return errors.New("disk full")
}

func (failingStore) List(context.Context, ListFilter) ([]Event, error) {
	return nil, nil
}

func TestStoreSubscriber_LogsAppendFailures(t *testing.T) {
	var logs bytes.Buffer
	sub := NewStoreSubscriber(failingStore{}, slog.New(slog.NewTextHandler(&logs, nil)))

	sub.Handle(NewEvent("echo"))

	if !strings.Contains(logs.String(), "disk full") {
		t.Fatalf("log output = %q, want append failure", logs.String())
	}
}

func TestStoreSubscriber_NilLogger(t *testing.T) {
	sub := NewStoreSubscriber(failingStore{}, nil)
	sub.Handle(NewEvent("echo")) // should not panic with nil logger
}

func TestStoreSubscriber_DrainUntilBusCloses(t *testing.T) {
	store := newTestStore(t)
	b := NewMemBus(MemBusConfig{})
	subscription := b.SubscribeAll()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewStoreSubscriber(store, nil).Drain(subscription)
	}()

	b.Publish(NewEvent("echo"))
	b.Publish(NewEvent("add"))
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after bus Close")
	}

	events, err := store.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}
