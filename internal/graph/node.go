package graph

import (
	"context"
	"fmt"
)

// PortType classifies the value a port carries. Types are advisory: the
// executor does not coerce values, nodes validate what they consume.
type PortType string

const (
	TypeString  PortType = "string"
	TypeNumber  PortType = "number"
	TypeBoolean PortType = "boolean"
	TypeObject  PortType = "object"
	TypeArray   PortType = "array"
	TypeAny     PortType = "any"
)

// Port declares one named input or output of a node.
type Port struct {
	Name     string
	Type     PortType
	Optional bool
}

// Inputs holds a node's resolved input values keyed by port name.
type Inputs map[string]any

// Outputs holds the values a node produced keyed by port name.
//
// Two keys are reserved: "success" (false marks an in-band validation
// failure, see Fail) and "_branch" (a routing decision consumed by the
// executor, see Step.Routes).
type Outputs map[string]any

// Properties holds a node's configuration, merged over its declared defaults.
type Properties map[string]any

// Exec is the uniform execute contract every node implements. Expected,
// validatable failures (missing required input, malformed argument) are
// reported in-band via Fail so the graph can route around them; a returned
// error is reserved for infrastructure failures and aborts the run.
type Exec func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error)

// Definition is an immutable unit-of-work descriptor. Identity is ID;
// Aliases resolve to the same definition. Definitions are registered once
// at process start and never mutated.
type Definition struct {
	ID       string
	Category string
	Aliases  []string
	Inputs   []Port
	Outputs  []Port
	Defaults Properties
	Exec     Exec
}

// OK builds a successful output map from alternating key/value pairs.
func OK(kv ...any) Outputs {
	out := Outputs{"success": true}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

// Fail builds an in-band validation failure. The run continues; downstream
// nodes and routes observe success=false and the error text.
func Fail(format string, args ...any) Outputs {
	return Outputs{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}

// Failed reports whether an output map carries an in-band failure.
func Failed(out Outputs) bool {
	ok, isBool := out["success"].(bool)
	return isBool && !ok
}

// String returns the named input as a string, or "" when absent or not a
// string.
func (in Inputs) String(name string) string {
	s, _ := in[name].(string)
	return s
}

// Number returns the named input as a float64, converting the common
// numeric kinds that arrive from JSON-decoded payloads.
func (in Inputs) Number(name string) (float64, bool) {
	switch v := in[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns the named input as a bool, or false when absent.
func (in Inputs) Bool(name string) bool {
	b, _ := in[name].(bool)
	return b
}

// Slice returns the named input as a []any, or nil when absent.
func (in Inputs) Slice(name string) []any {
	s, _ := in[name].([]any)
	return s
}

// Map returns the named input as a map[string]any, or nil when absent.
func (in Inputs) Map(name string) map[string]any {
	m, _ := in[name].(map[string]any)
	return m
}

// String returns the named property as a string, falling back to def.
func (p Properties) String(name, def string) string {
	if s, ok := p[name].(string); ok {
		return s
	}
	return def
}

// Int returns the named property as an int, falling back to def.
func (p Properties) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns the named property as a float64, falling back to def.
func (p Properties) Float(name string, def float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

// Strings returns the named property as a []string, accepting both
// []string and []any elements.
func (p Properties) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
