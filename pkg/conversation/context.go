package conversation

import (
	"encoding/json"
	"fmt"
)

// Context is the open-ended mutable state carried through one conversation.
type Context map[string]interface{}

// New returns an empty Context.
func New() Context {
	return make(Context)
}

// Has reports whether key is present, regardless of its value.
func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Get returns the raw value stored under key.
func (c Context) Get(key string) (interface{}, bool) {
	v, ok := c[key]
	return v, ok
}

// Set stores value under key.
func (c Context) Set(key string, value interface{}) {
	c[key] = value
}

// Delete removes key entirely. Deleting an absent key is a no-op.
func (c Context) Delete(key string) {
	delete(c, key)
}

// String returns the value under key when it is a string.
func (c Context) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value under key when it is a bool.
func (c Context) Bool(key string) (bool, bool) {
	v, ok := c[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Keys returns the keys currently set, in no particular order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy of nested maps and slices so that the copy can be
// mutated without affecting the original.
func (c Context) Clone() Context {
	if c == nil {
		return New()
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Context:
		return t.Clone()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// JSON renders the context for logs and LLM tool results.
func (c Context) JSON() string {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(c))
	}
	return string(data)
}
