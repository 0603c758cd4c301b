package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source implements ports.GraphSource over a directory (or any fs.FS):
// base.yaml at the root and one <id>.yaml per preset under presets/.
type Source struct {
	fsys fs.FS
}

// NewSource creates a Source over a directory on disk.
func NewSource(dir string) *Source {
	return &Source{fsys: os.DirFS(dir)}
}

// NewSourceFS creates a Source over any fs.FS, such as an embedded tree.
func NewSourceFS(fsys fs.FS) *Source {
	return &Source{fsys: fsys}
}

// Base returns base.yaml.
func (s *Source) Base(ctx context.Context) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, "base.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading base graph: %w", err)
	}
	return data, nil
}

// Preset returns presets/<id>.yaml.
func (s *Source) Preset(ctx context.Context, id string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, filepath.ToSlash(filepath.Join("presets", id+".yaml")))
	if err != nil {
		return nil, fmt.Errorf("reading preset %q: %w", id, err)
	}
	return data, nil
}

// ListPresets returns the preset ids found under presets/, sorted.
func (s *Source) ListPresets(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, "presets")
	if err != nil {
		return nil, nil // a graph without presets is fine
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}
