// Package transform holds the pure functions a node may apply to a raw model
// reply before the collected fields are written to context.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Func is a pure transform over the reply fields. It receives the fields
// extracted so far and a read-only context snapshot, and returns the fields
// to store. It must not mutate its inputs.
type Func func(fields map[string]string, snapshot map[string]string) (map[string]string, error)

// Registry maps transform names to functions. Graph definitions reference
// transforms by name so the graph stays pure data.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates a registry pre-populated with the builtin transforms.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("trim_space", TrimSpace)
	r.Register("drop_empty", DropEmpty)
	r.Register("squash_whitespace", SquashWhitespace)
	r.Register("lowercase", Lowercase)
	return r
}

// Register adds or replaces a named transform.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Apply runs the named transforms in order over a copy of fields.
func (r *Registry) Apply(names []string, fields map[string]string, snapshot map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, name := range names {
		r.mu.RLock()
		fn, ok := r.funcs[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown transform %q", name)
		}
		next, err := fn(out, snapshot)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", name, err)
		}
		out = next
	}
	return out, nil
}

// TrimSpace trims surrounding whitespace from every value.
func TrimSpace(fields map[string]string, _ map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// DropEmpty removes fields whose value is empty after trimming.
func DropEmpty(fields map[string]string, _ map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SquashWhitespace collapses internal whitespace runs to single spaces.
func SquashWhitespace(fields map[string]string, _ map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = whitespaceRun.ReplaceAllString(strings.TrimSpace(v), " ")
	}
	return out, nil
}

// Lowercase lowercases every value. Useful for enum-like fields such as
// genre that edge conditions compare against literals.
func Lowercase(fields map[string]string, _ map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = strings.ToLower(v)
	}
	return out, nil
}
