package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ToolErrorCodeInvalidRequest is returned when a handler request cannot be built.
	ToolErrorCodeInvalidRequest = "INVALID_REQUEST"
	// ToolErrorCodeTransportFailure is returned when transport I/O fails.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeTimeout is returned when a unit-configured timeout elapses.
	ToolErrorCodeTimeout = "TIMEOUT"
	// ToolErrorCodeUpstreamFailure is returned for non-success upstream responses.
	ToolErrorCodeUpstreamFailure = "UPSTREAM_FAILURE"
	// ToolErrorCodeDecodeFailure is returned when a handler response cannot be decoded.
	ToolErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ToolErrorCodeToolFailure is returned when the tool itself reports an error.
	ToolErrorCodeToolFailure = "TOOL_FAILURE"
	// ToolErrorCodeInvocationFailed is a generic fallback for invocation failures.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

// ErrInvalidInput is wrapped by builtins that reject their input.
var ErrInvalidInput = errors.New("invalid input")

// ToolError is a structured invocation error raised by transport-backed
// handlers. Error returns only the human-readable message so callers can show
// it without leaking codes or causes.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if code := strings.TrimSpace(e.Code); code != "" {
		return code
	}
	return ToolErrorCodeInvocationFailed
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil || len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// ErrorCode returns the ToolError code carried by err, if any.
func ErrorCode(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

// LoadError reports a tool unit that could not be loaded. It is recovered
// locally by the loader: logged, observed, and the unit is skipped.
type LoadError struct {
	Name string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("tool %q (%s): %v", e.Name, e.Path, e.Err)
}

// Unwrap exposes the underlying load failure.
func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
