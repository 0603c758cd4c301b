// Package graphs carries the default graph definition compiled into the
// binary: the five-layer base interview plus one preset per supported genre.
package graphs

import (
	"embed"

	"github.com/magicprompt/loom/pkg/adapters/file"
	"github.com/magicprompt/loom/pkg/ports"
)

//go:embed base.yaml presets
var FS embed.FS

// Default returns a GraphSource over the embedded definition.
func Default() ports.GraphSource {
	return file.NewSourceFS(FS)
}
