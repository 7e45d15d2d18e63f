package nlu

import (
	"encoding/json"
	"fmt"
)

// DoneKey is the context key an engine sets to signal the conversation has concluded.
const DoneKey = "done"

// Context is the conversation state exchanged with an engine across turns.
// Keys are engine-defined slots; only DoneKey has meaning outside the engine.
type Context map[string]any

// Done reports whether the completion marker is truthy.
// Truthiness follows loose JSON conventions: nil, false, 0 and "" are false,
// everything else is true.
func (c Context) Done() bool {
	if c == nil {
		return false
	}
	return truthy(c[DoneKey])
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

// Clone returns a deep copy so stored state cannot be mutated through a caller's map.
// A nil receiver clones to an empty, non-nil Context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case Context:
		return x.Clone()
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// MarshalContext encodes a context as a JSON object. nil encodes as {}.
func MarshalContext(c Context) ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(c))
}

// UnmarshalContext decodes a JSON object into a Context.
func UnmarshalContext(data []byte) (Context, error) {
	if len(data) == 0 {
		return Context{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if m == nil {
		return Context{}, nil
	}
	return Context(m), nil
}
