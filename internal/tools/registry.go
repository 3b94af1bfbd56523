package tools

import (
	"fmt"
	"slices"
)

// Registry maps tool names to tools. It is built once and read-only
// afterwards, so it is safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry. Names must be non-empty and unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.name == "" {
			return nil, fmt.Errorf("tools: tool with empty name")
		}
		if t.invoke == nil {
			return nil, fmt.Errorf("tools: %s has no handler", t.name)
		}
		if _, dup := r.tools[t.name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", t.name)
		}
		r.tools[t.name] = t
		r.order = append(r.order, t.name)
	}
	return r, nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns every tool in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string { return slices.Clone(r.order) }

// Descriptor is a tool's discovery entry.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Describe lists every tool verbatim, in registration order. A non-empty
// note for a tool is appended to its description in parentheses.
func (r *Registry) Describe(notes map[string]string) []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		desc := t.description
		if note := notes[name]; note != "" {
			desc += " (" + note + ")"
		}
		out = append(out, Descriptor{Name: name, Description: desc, Parameters: t.Schema()})
	}
	return out
}
