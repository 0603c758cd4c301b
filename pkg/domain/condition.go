package domain

import (
	"fmt"
	"strings"
)

// Condition kinds. Conditions are a small closed set of data-driven predicate
// variants rather than executable expressions, so traversal decisions stay
// replayable from a stored context snapshot.
const (
	CondEquals    = "equals"
	CondNotEquals = "not_equals"
	CondPresent   = "present"
	CondAbsent    = "absent"
	CondAll       = "all"
	CondAny       = "any"
	CondNot       = "not"
)

// Condition is a tagged predicate variant over a context snapshot.
// Field/Value apply to the leaf kinds, Terms to all/any, Term to not.
type Condition struct {
	Kind  string       `json:"kind" yaml:"kind"`
	Field string       `json:"field,omitempty" yaml:"field,omitempty"`
	Value string       `json:"value,omitempty" yaml:"value,omitempty"`
	Terms []*Condition `json:"terms,omitempty" yaml:"terms,omitempty"`
	Term  *Condition   `json:"term,omitempty" yaml:"term,omitempty"`
}

// Eval reports whether the condition holds for the given snapshot.
// Evaluation is pure: it never mutates the snapshot and the same snapshot
// always yields the same result.
func (c *Condition) Eval(snapshot map[string]string) bool {
	if c == nil {
		return true
	}
	switch c.Kind {
	case CondEquals:
		v, ok := snapshot[c.Field]
		return ok && v == c.Value
	case CondNotEquals:
		v, ok := snapshot[c.Field]
		return !ok || v != c.Value
	case CondPresent:
		_, ok := snapshot[c.Field]
		return ok
	case CondAbsent:
		_, ok := snapshot[c.Field]
		return !ok
	case CondAll:
		for _, t := range c.Terms {
			if !t.Eval(snapshot) {
				return false
			}
		}
		return true
	case CondAny:
		for _, t := range c.Terms {
			if t.Eval(snapshot) {
				return true
			}
		}
		return false
	case CondNot:
		return !c.Term.Eval(snapshot)
	}
	return false
}

// Validate checks structural well-formedness (leaf kinds need a field,
// composites need terms). Called by the loader so a malformed condition is a
// LoadError, never a runtime surprise.
func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Kind {
	case CondEquals, CondNotEquals:
		if c.Field == "" {
			return fmt.Errorf("%s condition missing field", c.Kind)
		}
	case CondPresent, CondAbsent:
		if c.Field == "" {
			return fmt.Errorf("%s condition missing field", c.Kind)
		}
	case CondAll, CondAny:
		if len(c.Terms) == 0 {
			return fmt.Errorf("%s condition has no terms", c.Kind)
		}
		for _, t := range c.Terms {
			if err := t.Validate(); err != nil {
				return err
			}
		}
	case CondNot:
		if c.Term == nil {
			return fmt.Errorf("not condition has no term")
		}
		return c.Term.Validate()
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

// String renders a compact human-readable form, used by the mermaid exporter
// and validation reports.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	switch c.Kind {
	case CondEquals:
		return fmt.Sprintf("%s == %q", c.Field, c.Value)
	case CondNotEquals:
		return fmt.Sprintf("%s != %q", c.Field, c.Value)
	case CondPresent:
		return c.Field + " present"
	case CondAbsent:
		return c.Field + " absent"
	case CondAll, CondAny:
		parts := make([]string, 0, len(c.Terms))
		for _, t := range c.Terms {
			parts = append(parts, t.String())
		}
		sep := " and "
		if c.Kind == CondAny {
			sep = " or "
		}
		return "(" + strings.Join(parts, sep) + ")"
	case CondNot:
		return "not " + c.Term.String()
	}
	return c.Kind
}
