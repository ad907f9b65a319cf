package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/petal-labs/tooldispatch/tool"
)

const errMissingToolField = "missing tool field"

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listToolsResponse struct {
	OK    bool     `json:"ok"`
	Tools []string `json:"tools"`
}

// handleListTools returns the names of all loaded tools.
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.Names()
	if names == nil {
		names = []string{}
	}
	_ = writeJSON(w, http.StatusOK, listToolsResponse{OK: true, Tools: names})
}

type invokeSuccess struct {
	OK     bool   `json:"ok"`
	Tool   string `json:"tool"`
	Output any    `json:"output"`
}

// handleInvoke dispatches one request to the named tool. Every path writes
// exactly one JSON response.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	requestID := tool.RequestIDFromContext(r.Context())
	body := parseInvokeBody(r.Body)

	name, ok := toolName(body["tool"])
	if !ok {
		s.logger.Debug("rejected request without tool field", "request_id", requestID)
		writeFailure(w, http.StatusBadRequest, errMissingToolField)
		return
	}

	t, found := s.registry.Get(name)
	if !found || !t.Invocable() {
		s.logger.Debug("tool not found", "tool", name, "request_id", requestID)
		writeFailure(w, http.StatusNotFound, "tool not found: "+name)
		return
	}

	input, hasInput := body["input"]
	if !hasInput || input == nil {
		input = map[string]any{}
	}

	// A client disconnect does not cancel an in-flight invocation.
	ctx := context.WithoutCancel(r.Context())
	start := time.Now()
	output, err := tool.Invoke(ctx, t, input)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error("tool invocation failed",
			"tool", name,
			"request_id", requestID,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		s.observeInvoke(requestID, t, elapsed, err)
		writeFailure(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	if err := writeJSON(w, http.StatusOK, invokeSuccess{OK: true, Tool: name, Output: output}); err != nil {
		err = fmt.Errorf("encode output: %w", err)
		s.logger.Error("tool output not encodable",
			"tool", name,
			"request_id", requestID,
			"error", err,
		)
		s.observeInvoke(requestID, t, elapsed, err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("tool invoked", "tool", name, "request_id", requestID, "duration_ms", elapsed.Milliseconds())
	s.observeInvoke(requestID, t, elapsed, nil)
}

func (s *Server) observeInvoke(requestID string, t tool.Tool, elapsed time.Duration, err error) {
	observation := tool.InvokeObservation{
		RequestID:  requestID,
		ToolName:   t.Name,
		Origin:     t.Origin,
		DurationMS: elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		observation.ErrorCode = tool.ErrorCode(err)
		observation.Error = errorMessage(err)
	}
	s.observer.ObserveInvoke(observation)
}

// parseInvokeBody reads the request body as a single JSON object. An absent,
// unparseable or oversized body, one that is not an object, or one followed by
// anything but whitespace yields an empty object.
func parseInvokeBody(r io.Reader) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return map[string]any{}
	}
	return body
}

// toolName extracts the requested tool name. Absent, null, empty, false and
// zero values count as missing; other non-string values are looked up by
// their JSON text.
func toolName(v any) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		return value, value != ""
	case bool:
		if !value {
			return "", false
		}
		return "true", true
	case json.Number:
		if f, err := value.Float64(); err == nil && f == 0 {
			return "", false
		}
		return value.String(), true
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value), true
		}
		return string(raw), true
	}
}

// errorMessage returns the caller-facing text for a handler failure.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return tool.ToolErrorCodeInvocationFailed
}
