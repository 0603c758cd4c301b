package ports

import "context"

// GraphSource supplies the base graph and preset definitions as data.
// The format of the raw documents is owned by the graphdef loader; sources
// only fetch bytes (filesystem, embedded, memory).
type GraphSource interface {
	// Base returns the raw base graph document.
	Base(ctx context.Context) ([]byte, error)

	// Preset returns the raw document for a preset id.
	Preset(ctx context.Context, id string) ([]byte, error)

	// ListPresets returns the preset ids this source can provide.
	ListPresets(ctx context.Context) ([]string, error)
}
