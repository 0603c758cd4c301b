package memory

import (
	"context"
	"fmt"
	"sort"
)

// Source implements ports.GraphSource from raw YAML documents held in
// memory. Tests build graphs with it directly.
type Source struct {
	base    []byte
	presets map[string][]byte
}

// NewSource creates a Source from a base document and optional presets.
func NewSource(base string, presets map[string]string) *Source {
	s := &Source{
		base:    []byte(base),
		presets: make(map[string][]byte, len(presets)),
	}
	for id, doc := range presets {
		s.presets[id] = []byte(doc)
	}
	return s
}

// Base returns the raw base graph document.
func (s *Source) Base(ctx context.Context) ([]byte, error) {
	return s.base, nil
}

// Preset returns the raw document for a preset id.
func (s *Source) Preset(ctx context.Context, id string) ([]byte, error) {
	doc, ok := s.presets[id]
	if !ok {
		return nil, fmt.Errorf("preset not found: %s", id)
	}
	return doc, nil
}

// ListPresets returns the preset ids, sorted.
func (s *Source) ListPresets(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.presets))
	for id := range s.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
