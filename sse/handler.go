// Package sse streams tool invocation events to HTTP clients as Server-Sent
// Events. It can replay recent entries from the journal before following the
// live event bus.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/petal-labs/tooldispatch/bus"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// maxReplay caps the ?replay= query parameter.
const maxReplay = 1000

// Handler serves an SSE stream of invocation events.
//
// Query parameters:
//
//	tool    only stream events for this tool
//	replay  send up to N journaled events (oldest first) before live ones
//
// SSE format:
//
//	id: {event id}
//	event: invocation
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every HeartbeatInterval. The stream
// ends when the client disconnects, the bus is closed, or Close is called.
type Handler struct {
	store     bus.EventStore
	bus       bus.EventBus
	heartbeat time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a Handler. store may be nil, in which case replay
// requests are served from the live bus only.
func NewHandler(store bus.EventStore, eb bus.EventBus) *Handler {
	return &Handler{
		store:     store,
		bus:       eb,
		heartbeat: HeartbeatInterval,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream and makes new requests fail with 503. The bus
// itself is left open.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	select {
	case <-h.done:
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	default:
	}

	toolName := r.URL.Query().Get("tool")
	var replay int
	if raw := r.URL.Query().Get("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid replay parameter", http.StatusBadRequest)
			return
		}
		replay = min(n, maxReplay)
	}

	// Subscribe before anything is written so that a client that has seen the
	// response headers cannot miss a live event.
	var sub bus.Subscription
	if toolName != "" {
		sub = h.bus.Subscribe(toolName)
	} else {
		sub = h.bus.SubscribeAll()
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := make(map[string]struct{})
	if replay > 0 && h.store != nil {
		events, err := h.store.List(r.Context(), bus.ListFilter{Tool: toolName, Limit: replay})
		if err != nil {
			return
		}
		// The journal lists newest first.
		slices.Reverse(events)
		for _, evt := range events {
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			sent[evt.ID] = struct{}{}
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-h.done:
			return

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, dup := sent[evt.ID]; dup {
				continue
			}
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, evt bus.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: invocation\ndata: %s\n\n", evt.ID, data)
	return err
}
