// Package tools holds the registry of named operations exposed to clients and
// the transport-independent dispatch core that invokes them.
//
// Each tool declares its parameters once. The declaration drives discovery
// output, argument filtering and required-argument checks, and a typed
// binder turns the filtered mapping into the handler's own parameter struct.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Param is the schema entry for one argument.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Field declares a named parameter.
type Field struct {
	Name     string
	Required bool
	Param
}

// Schema is the JSON-Schema-shaped parameter description served by discovery.
type Schema struct {
	Type       string           `json:"type"`
	Properties map[string]Param `json:"properties"`
	Required   []string         `json:"required,omitempty"`
}

// StringField declares a string parameter.
func StringField(name, description string, required bool, enum ...string) Field {
	return Field{Name: name, Required: required, Param: Param{Type: "string", Description: description, Enum: enum}}
}

// IntegerField declares an integer parameter.
func IntegerField(name, description string) Field {
	return Field{Name: name, Param: Param{Type: "integer", Description: description}}
}

// Tool is one named, schema-described operation. Tools are immutable once
// built.
type Tool struct {
	name        string
	description string
	fields      []Field
	invoke      func(ctx context.Context, args Args) (any, error)
}

// NewTool builds a tool whose handler receives a typed parameter struct.
// bind constructs P from the filtered arguments; any error it returns is
// reported as invalid arguments.
func NewTool[P any](
	name, description string,
	fields []Field,
	bind func(Args) (P, error),
	handle func(context.Context, P) (any, error),
) Tool {
	return Tool{
		name:        name,
		description: description,
		fields:      fields,
		invoke: func(ctx context.Context, args Args) (any, error) {
			p, err := bind(args)
			if err != nil {
				return nil, &bindError{err: err}
			}
			return handle(ctx, p)
		},
	}
}

type bindError struct{ err error }

func (e *bindError) Error() string { return e.err.Error() }
func (e *bindError) Unwrap() error { return e.err }

// Name returns the tool's registry key.
func (t Tool) Name() string { return t.name }

// Description returns the human-readable description.
func (t Tool) Description() string { return t.description }

// Fields returns the declared parameters in declaration order.
func (t Tool) Fields() []Field { return append([]Field(nil), t.fields...) }

// Schema returns the parameter schema.
func (t Tool) Schema() Schema {
	s := Schema{Type: "object", Properties: make(map[string]Param, len(t.fields))}
	for _, f := range t.fields {
		s.Properties[f.Name] = f.Param
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func (t Tool) accepts(name string) bool {
	for _, f := range t.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Args is a call's argument mapping after unknown keys have been dropped.
type Args map[string]any

// Has reports whether name is present and not null.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// String returns a string argument. Absent or null yields ok=false; any
// other non-string value is an error.
func (a Args) String(name string) (s string, ok bool, err error) {
	if !a.Has(name) {
		return "", false, nil
	}
	s, isString := a[name].(string)
	if !isString {
		return "", false, fmt.Errorf("argument %q must be a string", name)
	}
	return s, true, nil
}

// Int coerces an argument to an integer. Numbers are truncated and numeric
// strings are parsed; anything else, including absence, yields ok=false.
func (a Args) Int(name string) (n int, ok bool) {
	if !a.Has(name) {
		return 0, false
	}
	switch v := a[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(clampFloat(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil {
			return int(clampFloat(f)), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func clampFloat(f float64) float64 {
	return max(min(f, math.MaxInt32), math.MinInt32)
}
