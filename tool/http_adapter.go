package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// HTTPHandler forwards invocations to a remote endpoint as a JSON POST.
type HTTPHandler struct {
	name   string
	spec   HandlerSpec
	client *http.Client
}

// NewHTTPHandler creates an HTTP-backed handler. A nil client uses the shared
// pooled client.
func NewHTTPHandler(name string, spec HandlerSpec, client *http.Client) *HTTPHandler {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &HTTPHandler{name: name, spec: spec, client: client}
}

// Handle POSTs {"tool","input"} to the unit endpoint and decodes the reply.
func (h *HTTPHandler) Handle(ctx context.Context, input any) (any, error) {
	if h == nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: http handler is nil", nil)
	}
	endpoint := strings.TrimSpace(h.spec.Endpoint)
	if endpoint == "" {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: http handler endpoint is empty", nil)
	}

	req := newHandlerRequest(ctx, h.name, input)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: encode http request", err)
	}

	callCtx, cancel := withHandlerTimeout(ctx, h.spec)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: build http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	for key, value := range h.spec.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newToolError(ToolErrorCodeTimeout, "tool: http invoke timed out", err)
		}
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: http invoke failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: read http response", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Prefer the unit's own error envelope when it sent one.
		if _, err := decodeHandlerResponse(respBody); err != nil && ErrorCode(err) != ToolErrorCodeDecodeFailure {
			return nil, err
		}
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, withToolErrorDetails(
			newToolError(ToolErrorCodeUpstreamFailure, message, nil),
			map[string]any{"status_code": resp.StatusCode},
		)
	}

	return decodeHandlerResponse(respBody)
}
