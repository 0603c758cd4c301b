package domain

import (
	"sort"
	"time"
)

// Context holds the field values collected during one traversal session.
// Fields are append-only: nothing is ever deleted within a session, though an
// explicit overwrite transform may replace a value. The Context is owned by
// exactly one engine instance; it does no locking of its own.
type Context struct {
	fields map[string]string
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{fields: make(map[string]string)}
}

// ContextFrom seeds a context with the given fields (used by replay).
func ContextFrom(fields map[string]string) *Context {
	c := NewContext()
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// Get returns the value for field and whether it is present.
func (c *Context) Get(field string) (string, bool) {
	v, ok := c.fields[field]
	return v, ok
}

// Set writes a field value.
func (c *Context) Set(field, value string) {
	c.fields[field] = value
}

// Len reports the number of collected fields.
func (c *Context) Len() int { return len(c.fields) }

// Snapshot returns an immutable copy of the current fields. Condition
// evaluation and prompt composition read snapshots only, so an in-flight
// step can never leak partial writes.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy, used when forking branches.
func (c *Context) Clone() *Context {
	return ContextFrom(c.fields)
}

// FieldNames returns the collected field names sorted for deterministic
// iteration.
func (c *Context) FieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for k := range c.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StepRecord is one entry of the conversation record: a visited node, the
// instruction composed for it, the raw model reply, and the fields collected
// from that reply. The ordered list of records is shaped like the path taken
// through the graph, not the whole graph.
type StepRecord struct {
	NodeID    string            `json:"node_id"`
	Prompt    string            `json:"prompt"`
	RawReply  string            `json:"raw_reply"`
	Fields    map[string]string `json:"fields"`
	Timestamp time.Time         `json:"timestamp"`
}
