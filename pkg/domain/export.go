package domain

import "time"

// ExportPackage is the terminal artifact of a session: the assembled prompt
// in both languages plus metadata. Created once at session completion and
// immutable thereafter.
type ExportPackage struct {
	SessionID    string            `json:"session_id"`
	RU           string            `json:"ru"`
	EN           string            `json:"en"`
	GraphVersion string            `json:"graph_version"`
	Presets      []string          `json:"presets,omitempty"`
	Fields       map[string]string `json:"fields"`
	CreatedAt    time.Time         `json:"created_at"`
}
