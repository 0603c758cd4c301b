// Package file provides filesystem implementations of the persistence and
// graph source ports. Sessions live as JSON files under a base directory;
// graphs and presets are YAML files in a graphs directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// Store implements ports.SessionStore on the local filesystem. Each session
// gets a directory with project.json, steps.json, and export.json.
type Store struct {
	BasePath string
}

// NewStore creates a Store rooted at basePath.
// If basePath is empty, it defaults to ".loom/sessions".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".loom", "sessions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) dir(sessionID string) string {
	return filepath.Join(s.BasePath, sessionID)
}

// writeAtomic writes data via a temp file and rename so readers never see a
// partial file.
func writeAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensuring session directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// CreateProject registers a session on disk.
func (s *Store) CreateProject(ctx context.Context, row ports.ProjectRow) error {
	if row.SessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	return writeAtomic(s.dir(row.SessionID), "project.json", row)
}

// LoadProject retrieves session identity.
func (s *Store) LoadProject(ctx context.Context, sessionID string) (*ports.ProjectRow, error) {
	var row ports.ProjectRow
	if err := readJSON(filepath.Join(s.dir(sessionID), "project.json"), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// AppendStep appends to the session's steps file. The whole list is
// rewritten atomically; step counts per session are small.
func (s *Store) AppendStep(ctx context.Context, row ports.StepRow) error {
	rows, err := s.LoadSteps(ctx, row.SessionID)
	if err != nil {
		return err
	}
	rows = append(rows, row)
	return writeAtomic(s.dir(row.SessionID), "steps.json", rows)
}

// LoadSteps returns all rows for a session in append order.
func (s *Store) LoadSteps(ctx context.Context, sessionID string) ([]ports.StepRow, error) {
	var rows []ports.StepRow
	err := readJSON(filepath.Join(s.dir(sessionID), "steps.json"), &rows)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil // session exists but has no steps yet
		}
		return nil, err
	}
	return rows, nil
}

// WriteExport stores the final package, refusing a second write.
func (s *Store) WriteExport(ctx context.Context, row ports.ExportRow) error {
	path := filepath.Join(s.dir(row.SessionID), "export.json")
	if _, err := os.Stat(path); err == nil {
		return domain.ErrExportExists
	}
	return writeAtomic(s.dir(row.SessionID), "export.json", row)
}

// LoadExport retrieves the stored package.
func (s *Store) LoadExport(ctx context.Context, sessionID string) (*ports.ExportRow, error) {
	var row ports.ExportRow
	if err := readJSON(filepath.Join(s.dir(sessionID), "export.json"), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes the session directory.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	return os.RemoveAll(s.dir(sessionID))
}

// ListSessions returns the session directories, sorted.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
