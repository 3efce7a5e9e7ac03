package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const (
	// MaxContextEntries bounds the number of checkpoint context pairs.
	MaxContextEntries = 8
	// MaxContextKeyLen bounds a context key in bytes.
	MaxContextKeyLen = 32
	// MaxContextValueLen bounds a context value in bytes.
	MaxContextValueLen = 128
)

var (
	ErrContextFull         = errors.New("context full")
	ErrContextKeyTooLong   = errors.New("context key too long")
	ErrContextValueTooLong = errors.New("context value too long")
	ErrContextKeyEmpty     = errors.New("context key empty")
)

// Well-known checkpoint context keys.
const (
	ContextFilePath   = "file_path"
	ContextModuleName = "module_name"
	ContextAccessMask = "access_mask"
)

// Context is a fixed-capacity key/value set describing the checkpoint
// (file being opened, module being loaded, requested access mask). It is a
// value type: copying a SystemState copies its context.
type Context struct {
	n    uint8
	keys [MaxContextEntries]string
	vals [MaxContextEntries]string
}

// Set inserts or replaces a key.
func (c *Context) Set(key, value string) error {
	if key == "" {
		return ErrContextKeyEmpty
	}
	if len(key) > MaxContextKeyLen {
		return fmt.Errorf("%w: %q", ErrContextKeyTooLong, key)
	}
	if len(value) > MaxContextValueLen {
		return fmt.Errorf("%w: %q", ErrContextValueTooLong, key)
	}
	for i := 0; i < int(c.n); i++ {
		if c.keys[i] == key {
			c.vals[i] = value
			return nil
		}
	}
	if int(c.n) == MaxContextEntries {
		return ErrContextFull
	}
	c.keys[c.n] = key
	c.vals[c.n] = value
	c.n++
	return nil
}

// Get returns the value for key.
func (c *Context) Get(key string) (string, bool) {
	for i := 0; i < int(c.n); i++ {
		if c.keys[i] == key {
			return c.vals[i], true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (c *Context) Len() int {
	return int(c.n)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (c *Context) Range(fn func(key, value string) bool) {
	for i := 0; i < int(c.n); i++ {
		if !fn(c.keys[i], c.vals[i]) {
			return
		}
	}
}

// IsZero reports whether the context is empty. Used by encoding/json omitempty handling.
func (c Context) IsZero() bool {
	return c.n == 0
}

// MarshalJSON encodes the context as a JSON object.
func (c Context) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, c.n)
	for i := 0; i < int(c.n); i++ {
		m[c.keys[i]] = c.vals[i]
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a JSON object, enforcing the context bounds.
func (c *Context) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	*c = Context{}
	for _, k := range keys {
		if err := c.Set(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}
