package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// stdioWaitDelay bounds how long Wait lingers on output pipes held open by
// grandchildren after the unit itself has exited or been killed.
const stdioWaitDelay = 2 * time.Second

// StdioHandler runs a subprocess per invocation. The request document is
// written to stdin and the reply envelope is read from stdout.
type StdioHandler struct {
	name string
	spec HandlerSpec
}

// NewStdioHandler creates a subprocess-backed handler.
func NewStdioHandler(name string, spec HandlerSpec) *StdioHandler {
	return &StdioHandler{name: name, spec: spec}
}

// Handle executes the unit's command once with input.
func (h *StdioHandler) Handle(ctx context.Context, input any) (any, error) {
	if h == nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: stdio handler is nil", nil)
	}
	command := strings.TrimSpace(h.spec.Command)
	if command == "" {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: stdio handler command is empty", nil)
	}

	payload, err := json.Marshal(newHandlerRequest(ctx, h.name, input))
	if err != nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: stdio encode request", err)
	}

	execCtx, cancel := withHandlerTimeout(ctx, h.spec)
	defer cancel()

	// #nosec G204 -- command/args come from an operator-supplied tool manifest.
	cmd := exec.CommandContext(execCtx, command, h.spec.Args...)
	cmd.Dir = h.spec.Dir
	if len(h.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(h.spec.Env)...)
	}
	// exec copies stdin and stdout concurrently, so a unit may write before it
	// reads, or exit without reading its request at all.
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = stdioWaitDelay

	if err := cmd.Start(); err != nil {
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: stdio start command: "+err.Error(), err)
	}
	waitErr := cmd.Wait()

	if execCtx.Err() != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, newToolError(ToolErrorCodeTimeout, "tool: stdio invoke timed out", execCtx.Err())
		}
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: stdio invoke canceled", execCtx.Err())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, newToolError(ToolErrorCodeTransportFailure, "tool: stdio wait: "+waitErr.Error(), waitErr)
		}
		// A unit may report its failure as an error envelope and exit non-zero.
		if _, err := decodeHandlerResponse(stdout.Bytes()); err != nil && ErrorCode(err) != ToolErrorCodeDecodeFailure {
			return nil, err
		}
		stderrText := strings.TrimSpace(stderr.String())
		message := stderrText
		if message == "" {
			message = waitErr.Error()
		}
		return nil, withToolErrorDetails(
			newToolError(ToolErrorCodeUpstreamFailure, message, waitErr),
			map[string]any{"stderr": stderrText},
		)
	}

	return decodeHandlerResponse(stdout.Bytes())
}

func withHandlerTimeout(parent context.Context, spec HandlerSpec) (context.Context, context.CancelFunc) {
	if timeout := spec.timeout(); timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
