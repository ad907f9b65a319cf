package bus

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, cfg ...SQLiteStoreConfig) *SQLiteEventStore {
	t.Helper()
	var c SQLiteStoreConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.DSN == "" {
		c.DSN = filepath.Join(t.TempDir(), "journal.db")
	}
	store, err := NewSQLiteEventStore(c)
	if err != nil {
		t.Fatalf("NewSQLiteEventStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeEvent(tool string, at time.Time) Event {
	e := NewEvent(tool)
	e.Time = at
	e.Success = true
	e.DurationMS = 3
	return e
}

func TestSQLiteEventStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteEventStore(SQLiteStoreConfig{}); err == nil {
		t.Fatal("NewSQLiteEventStore() error = nil, want dsn required")
	}
}

func TestSQLiteEventStore_AppendList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	failed := makeEvent("add", base.Add(2*time.Second))
	failed.Success = false
	failed.RequestID = "req-2"
	failed.Origin = "native"
	failed.ErrorCode = "TOOL_FAILURE"
	failed.Error = "add: invalid input"

	events := []Event{
		makeEvent("echo", base),
		makeEvent("echo", base.Add(time.Second)),
		failed,
	}
	for _, e := range events {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].ID != failed.ID {
		t.Fatalf("first event = %s, want newest (%s)", got[0].ID, failed.ID)
	}
	first := got[0]
	if first.Success || first.Error != failed.Error || first.ErrorCode != failed.ErrorCode ||
		first.RequestID != "req-2" || first.Origin != "native" || first.DurationMS != 3 {
		t.Fatalf("round-tripped event = %+v, want %+v", first, failed)
	}
	if !first.Time.Equal(failed.Time) {
		t.Fatalf("time = %v, want %v", first.Time, failed.Time)
	}
}

func TestSQLiteEventStore_AppendRejectsMissingAndDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, Event{Tool: "echo"}); err == nil {
		t.Fatal("Append(no id) error = nil, want non-nil")
	}

	e := NewEvent("echo")
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, e); err == nil {
		t.Fatal("Append(duplicate id) error = nil, want non-nil")
	}
}

func TestSQLiteEventStore_ListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		tool := "echo"
		if i%2 == 1 {
			tool = "add"
		}
		if err := store.Append(ctx, makeEvent(tool, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	byTool, err := store.List(ctx, ListFilter{Tool: "add"})
	if err != nil {
		t.Fatalf("List(tool): %v", err)
	}
	if len(byTool) != 2 {
		t.Fatalf("List(tool=add) = %d events, want 2", len(byTool))
	}

	since, err := store.List(ctx, ListFilter{Since: base.Add(3 * time.Minute)})
	if err != nil {
		t.Fatalf("List(since): %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("List(since) = %d events, want 2", len(since))
	}

	limited, err := store.List(ctx, ListFilter{Tool: "echo", Limit: 2})
	if err != nil {
		t.Fatalf("List(limit): %v", err)
	}
	if len(limited) != 2 || !limited[0].Time.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("List(limit) = %+v, want two newest echo events", limited)
	}

	empty, err := store.List(ctx, ListFilter{Tool: "nope"})
	if err != nil {
		t.Fatalf("List(nope): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("List(nope) = %d events, want 0", len(empty))
	}
}

func TestSQLiteEventStore_PruneByAge(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{RetentionAge: time.Hour})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old := makeEvent("echo", now.Add(-2*time.Hour))
	recent := makeEvent("echo", now.Add(-10*time.Minute))
	for _, e := range []Event{old, recent} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	left, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(left) != 1 || left[0].ID != recent.ID {
		t.Fatalf("remaining = %+v, want only the recent event", left)
	}
}

func TestSQLiteEventStore_PruneWithoutRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Append(ctx, makeEvent("echo", time.Unix(0, 0))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	removed, err := store.Prune(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("Prune() = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestSQLiteEventStore_AppendDefaultsTime(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	e := NewEvent("echo")
	e.Time = time.Time{}
	if err := store.Append(context.Background(), e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := store.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || !got[0].Time.Equal(fixed) {
		t.Fatalf("stored time = %v, want %v", got, fixed)
	}
}
