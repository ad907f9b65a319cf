package tool

import (
	"fmt"
	"slices"
	"strings"
)

// Registry maps tool names to tools. It has no mutators: once built it is safe
// for concurrent reads without locking.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from the given tools. Names must be non-empty
// and unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("tool: registry entry has empty name")
		}
		if _, exists := m[name]; exists {
			return nil, fmt.Errorf("tool: duplicate tool name %q", name)
		}
		t.Name = name
		m[name] = t
	}
	return &Registry{tools: m}, nil
}

// EmptyRegistry returns a registry with no tools.
func EmptyRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Get looks a tool up by name. It has no side effects.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in deterministic order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tools returns registered tools ordered by name.
func (r *Registry) Tools() []Tool {
	names := r.Names()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}
