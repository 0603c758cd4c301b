// Package memory provides in-memory implementations of the persistence and
// graph source ports, used by tests and the default CLI setup.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	projects map[string]ports.ProjectRow
	steps    map[string][]ports.StepRow
	exports  map[string]ports.ExportRow
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		projects: make(map[string]ports.ProjectRow),
		steps:    make(map[string][]ports.StepRow),
		exports:  make(map[string]ports.ExportRow),
	}
}

// CreateProject registers a session.
func (s *Store) CreateProject(ctx context.Context, row ports.ProjectRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[row.SessionID] = row
	return nil
}

// LoadProject retrieves session identity.
func (s *Store) LoadProject(ctx context.Context, sessionID string) (*ports.ProjectRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.projects[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &row, nil
}

// AppendStep appends a conversation record entry. Field maps are copied so
// the caller cannot mutate stored rows by reference.
func (s *Store) AppendStep(ctx context.Context, row ports.StepRow) error {
	fields := make(map[string]string, len(row.Fields))
	for k, v := range row.Fields {
		fields[k] = v
	}
	row.Fields = fields

	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[row.SessionID] = append(s.steps[row.SessionID], row)
	return nil
}

// LoadSteps returns all rows for a session in append order.
func (s *Store) LoadSteps(ctx context.Context, sessionID string) ([]ports.StepRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.steps[sessionID]
	out := make([]ports.StepRow, len(rows))
	copy(out, rows)
	return out, nil
}

// WriteExport stores the final package, once.
func (s *Store) WriteExport(ctx context.Context, row ports.ExportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.exports[row.SessionID]; exists {
		return domain.ErrExportExists
	}
	s.exports[row.SessionID] = row
	return nil
}

// LoadExport retrieves the stored package.
func (s *Store) LoadExport(ctx context.Context, sessionID string) (*ports.ExportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.exports[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &row, nil
}

// Delete removes all rows for a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, sessionID)
	delete(s.steps, sessionID)
	delete(s.exports, sessionID)
	return nil
}

// ListSessions returns known session ids, sorted.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
