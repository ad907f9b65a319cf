package tool

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoHandler is returned by Invoke for a tool without a handler.
var ErrNoHandler = errors.New("tool: no handler")

// Invoke calls the tool's handler once. A panicking handler is reported as an
// error instead of unwinding the caller.
func Invoke(ctx context.Context, t Tool, input any) (output any, err error) {
	if !t.Invocable() {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			output = nil
			if rErr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rErr)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Handler.Handle(ctx, input)
}
