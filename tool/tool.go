package tool

import "context"

// Origin indicates how a tool's handler is implemented.
type Origin string

const (
	OriginNative Origin = "native"
	OriginStdio  Origin = "stdio"
	OriginHTTP   Origin = "http"
)

// Handler is the capability every tool exposes. Input and output are
// schema-less JSON-like values; each tool validates its own input.
type Handler interface {
	Handle(ctx context.Context, input any) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, input any) (any, error)

// Handle calls f(ctx, input).
func (f HandlerFunc) Handle(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// Tool is a named unit of behavior owned by a Registry.
type Tool struct {
	Name        string  `json:"name"`
	Origin      Origin  `json:"origin,omitempty"`
	Source      string  `json:"source,omitempty"`
	Description string  `json:"description,omitempty"`
	Handler     Handler `json:"-"`
}

// Invocable reports whether the tool carries a handler that can be called.
func (t Tool) Invocable() bool {
	return t.Handler != nil
}
