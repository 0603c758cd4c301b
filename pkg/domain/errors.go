package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrExportExists is returned when an export is written twice for one session.
var ErrExportExists = errors.New("export already written for session")

// LoadError reports a malformed or colliding graph definition. It is fatal at
// startup and never occurs during a session.
type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string {
	return "graph load failed: " + e.Reason
}

// CollectionError reports that the transform pipeline did not populate every
// field the node declares in collect. Step-local and retryable: re-invoking
// the model with the same composed instruction may succeed.
type CollectionError struct {
	NodeID  string
	Missing []string
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("node %q reply missing collected field(s): %s", e.NodeID, strings.Join(e.Missing, ", "))
}

// TemplateError reports a prompt template referencing a field not present in
// context. This indicates a graph-authoring defect and is fatal for the
// session; it is never retried.
type TemplateError struct {
	NodeID string
	Field  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("node %q template references unavailable field %q", e.NodeID, e.Field)
}

// LLMError reports a failure of the external model collaborator. Retry policy
// is owned by the caller; Attempt makes a retry meaningful.
type LLMError struct {
	NodeID  string
	Attempt int
	Timeout bool
	Err     error
}

func (e *LLMError) Error() string {
	kind := "llm call failed"
	if e.Timeout {
		kind = "llm call timed out"
	}
	return fmt.Sprintf("%s at node %q (attempt %d): %v", kind, e.NodeID, e.Attempt, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// MergeConflict reports two sibling branches writing the same field with
// different values at join. Fatal for the session; both values are surfaced
// so an operator can arbitrate rather than the engine silently picking one.
type MergeConflict struct {
	Field string
	A     string
	B     string
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("branches disagree on field %q: %q vs %q", e.Field, e.A, e.B)
}

// FailureKind classifies a failure for reporting and metrics.
func FailureKind(err error) string {
	var (
		loadErr     *LoadError
		collectErr  *CollectionError
		templateErr *TemplateError
		llmErr      *LLMError
		mergeErr    *MergeConflict
	)
	switch {
	case errors.As(err, &loadErr):
		return "load"
	case errors.As(err, &collectErr):
		return "collection"
	case errors.As(err, &templateErr):
		return "template"
	case errors.As(err, &llmErr):
		if llmErr.Timeout {
			return "llm_timeout"
		}
		return "llm"
	case errors.As(err, &mergeErr):
		return "merge_conflict"
	}
	return "internal"
}

// Retryable reports whether a failed step may be retried by re-entering the
// step algorithm at the same node. Template errors and merge conflicts are
// authoring/session defects and are not retried.
func Retryable(err error) bool {
	switch FailureKind(err) {
	case "collection", "llm", "llm_timeout":
		return true
	}
	return false
}
