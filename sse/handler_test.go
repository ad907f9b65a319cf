package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/tooldispatch/bus"
	"github.com/petal-labs/tooldispatch/sse"
)

// sseMessage represents a parsed SSE message from the stream.
type sseMessage struct {
	ID    string
	Event string
	Data  string
}

// readMessages reads n SSE messages from r, failing the test after a timeout.
func readMessages(t *testing.T, r *bufio.Reader, n int) []sseMessage {
	t.Helper()
	type result struct {
		msgs []sseMessage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var (
			msgs    []sseMessage
			current sseMessage
		)
		for len(msgs) < n {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- result{msgs, err}
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if current != (sseMessage{}) {
					msgs = append(msgs, current)
					current = sseMessage{}
				}
			case strings.HasPrefix(line, ": "):
				// heartbeat
			case strings.HasPrefix(line, "id: "):
				current.ID = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				current.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		done <- result{msgs, nil}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("reading stream after %d messages: %v", len(res.msgs), res.err)
		}
		return res.msgs
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %d SSE messages", n)
		return nil
	}
}

func decodeEvent(t *testing.T, msg sseMessage) bus.Event {
	t.Helper()
	var e bus.Event
	if err := json.Unmarshal([]byte(msg.Data), &e); err != nil {
		t.Fatalf("decode event %q: %v", msg.Data, err)
	}
	return e
}

func setupTestServer(store bus.EventStore, eb bus.EventBus) *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /events", sse.NewHandler(store, eb))
	return httptest.NewServer(mux)
}

func openStream(t *testing.T, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected Content-Type text/event-stream, got %s", ct)
	}
	return resp, bufio.NewReader(resp.Body)
}

func TestHandler_StreamsLiveEvents(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	ts := setupTestServer(nil, eb)
	defer ts.Close()
	defer eb.Close()

	resp, reader := openStream(t, ts.URL+"/events")
	defer resp.Body.Close()

	first := bus.NewEvent("echo")
	second := bus.NewEvent("add")
	eb.Publish(first)
	eb.Publish(second)

	msgs := readMessages(t, reader, 2)
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Fatalf("ids = %s, %s; want %s, %s", msgs[0].ID, msgs[1].ID, first.ID, second.ID)
	}
	if msgs[0].Event != "invocation" {
		t.Fatalf("event = %q, want invocation", msgs[0].Event)
	}
	if got := decodeEvent(t, msgs[1]); got.Tool != "add" {
		t.Fatalf("second event tool = %q, want add", got.Tool)
	}
}

func TestHandler_FiltersByTool(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	ts := setupTestServer(nil, eb)
	defer ts.Close()
	defer eb.Close()

	resp, reader := openStream(t, ts.URL+"/events?tool=echo")
	defer resp.Body.Close()

	eb.Publish(bus.NewEvent("add"))
	want := bus.NewEvent("echo")
	eb.Publish(want)

	msgs := readMessages(t, reader, 1)
	if msgs[0].ID != want.ID {
		t.Fatalf("id = %s, want only the echo event %s", msgs[0].ID, want.ID)
	}
}

func TestHandler_ReplaysJournalOldestFirst(t *testing.T) {
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var stored []bus.Event
	for i := range 3 {
		e := bus.NewEvent("echo")
		e.Time = base.Add(time.Duration(i) * time.Second)
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatal(err)
		}
		stored = append(stored, e)
	}

	eb := bus.NewMemBus(bus.MemBusConfig{})
	ts := setupTestServer(store, eb)
	defer ts.Close()
	defer eb.Close()

	resp, reader := openStream(t, ts.URL+"/events?replay=2")
	defer resp.Body.Close()

	live := bus.NewEvent("echo")
	eb.Publish(live)

	msgs := readMessages(t, reader, 3)
	got := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	want := []string{stored[1].ID, stored[2].ID, live.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestHandler_InvalidReplay(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	ts := setupTestServer(nil, eb)
	defer ts.Close()
	defer eb.Close()

	for _, q := range []string{"replay=-1", "replay=lots"} {
		resp, err := http.Get(ts.URL + "/events?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHandler_EndsWhenBusCloses(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	ts := setupTestServer(nil, eb)
	defer ts.Close()

	resp, reader := openStream(t, ts.URL+"/events")
	defer resp.Body.Close()
	if err := eb.Close(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := reader.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected stream to end after bus Close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}
}

func TestHandler_CloseEndsStreamsAndKeepsBusOpen(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	h := sse.NewHandler(nil, eb)
	mux := http.NewServeMux()
	mux.Handle("GET /events", h)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer eb.Close()

	resp, reader := openStream(t, ts.URL+"/events")
	defer resp.Body.Close()

	// A journal subscriber keeps receiving after the stream handler closes.
	journal := eb.SubscribeAll()
	defer journal.Close()

	h.Close()
	h.Close()

	done := make(chan error, 1)
	go func() {
		_, err := reader.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected stream to end after handler Close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}

	eb.Publish(bus.NewEvent("echo"))
	select {
	case evt := <-journal.Events():
		if evt.Tool != "echo" {
			t.Fatalf("tool = %q, want echo", evt.Tool)
		}
	case <-time.After(time.Second):
		t.Fatal("bus stopped delivering after handler Close")
	}

	late, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	late.Body.Close()
	if late.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status after Close = %d, want 503", late.StatusCode)
	}
}
