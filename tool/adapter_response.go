package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// handlerRequest is the JSON document stdio and http units receive.
type handlerRequest struct {
	Tool      string `json:"tool"`
	Input     any    `json:"input"`
	RequestID string `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// WithRequestID attaches a request id that transport handlers forward to units.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func newHandlerRequest(ctx context.Context, name string, input any) handlerRequest {
	return handlerRequest{
		Tool:      name,
		Input:     input,
		RequestID: RequestIDFromContext(ctx),
	}
}

// decodeHandlerResponse decodes a unit reply of the form {"output": ...} or
// {"error": "..."} / {"error": {"code": ..., "message": ...}}.
func decodeHandlerResponse(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, newToolError(ToolErrorCodeDecodeFailure, "tool: handler response is empty", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, newToolError(ToolErrorCodeDecodeFailure, "tool: decode handler response", err)
	}

	if errorRaw, hasError := obj["error"]; hasError && errorRaw != nil {
		return nil, decodeToolError(errorRaw)
	}
	output, hasOutput := obj["output"]
	if !hasOutput {
		return nil, newToolError(ToolErrorCodeDecodeFailure, "tool: handler response must contain output or error", nil)
	}
	return output, nil
}

func decodeToolError(raw any) error {
	switch v := raw.(type) {
	case string:
		return newToolError(ToolErrorCodeToolFailure, v, nil)
	case map[string]any:
		code, _ := v["code"].(string)
		if strings.TrimSpace(code) == "" {
			code = ToolErrorCodeToolFailure
		}
		message, _ := v["message"].(string)
		err := newToolError(code, message, nil)
		if details, ok := v["details"].(map[string]any); ok {
			err = withToolErrorDetails(err, details)
		}
		return err
	default:
		return newToolError(ToolErrorCodeToolFailure, fmt.Sprint(v), nil)
	}
}
