package ports

import (
	"context"
	"time"

	"github.com/magicprompt/loom/pkg/domain"
)

// ProjectRow identifies a session in the projects table.
type ProjectRow struct {
	SessionID    string    `json:"session_id"`
	GraphVersion string    `json:"graph_version"`
	Presets      []string  `json:"presets,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StepRow is one append-only graph_state entry, keyed by session + sequence.
// Branch carries the fork target when the step ran inside a sub-traversal.
type StepRow struct {
	SessionID string            `json:"session_id"`
	Seq       int               `json:"seq"`
	Branch    string            `json:"branch,omitempty"`
	NodeID    string            `json:"node_id"`
	Prompt    string            `json:"prompt"`
	RawReply  string            `json:"raw_reply"`
	Fields    map[string]string `json:"fields"`
	Timestamp time.Time         `json:"timestamp"`
}

// ExportRow is the write-once exports entry for a completed session.
type ExportRow struct {
	SessionID string               `json:"session_id"`
	Package   domain.ExportPackage `json:"package"`
	CreatedAt time.Time            `json:"created_at"`
}

// SessionStore is the persistence collaborator. The core appends a StepRow
// after every successful step and writes an ExportRow exactly once at
// session completion; it never updates or deletes rows.
type SessionStore interface {
	// CreateProject registers a new session.
	CreateProject(ctx context.Context, row ProjectRow) error

	// LoadProject retrieves session identity. Returns
	// domain.ErrSessionNotFound if absent.
	LoadProject(ctx context.Context, sessionID string) (*ProjectRow, error)

	// AppendStep appends a conversation record entry.
	AppendStep(ctx context.Context, row StepRow) error

	// LoadSteps returns all step rows for a session in append order.
	LoadSteps(ctx context.Context, sessionID string) ([]StepRow, error)

	// WriteExport stores the final package. A second write for the same
	// session returns domain.ErrExportExists.
	WriteExport(ctx context.Context, row ExportRow) error

	// LoadExport retrieves the stored package. Returns
	// domain.ErrSessionNotFound if absent.
	LoadExport(ctx context.Context, sessionID string) (*ExportRow, error)

	// ListSessions returns known session ids.
	ListSessions(ctx context.Context) ([]string, error)

	// Delete removes all rows for a session. Deleting an unknown session is
	// not an error.
	Delete(ctx context.Context, sessionID string) error
}
