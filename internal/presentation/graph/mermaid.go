// Package graph renders a graph definition as Mermaid flowchart syntax, with
// optional overlay of a session's traversal state.
package graph

import (
	"fmt"
	"strings"

	"github.com/magicprompt/loom/pkg/domain"
)

// Overlay contains session state to visualize on top of the static graph.
type Overlay struct {
	Visited []string
	Current string
}

// GenerateMermaid produces a Mermaid flowchart from the graph. Shapes follow
// the layer: the entry node is a circle, delivery nodes are subroutines,
// everything else is a parallelogram (a question the model answers).
// Conditional edges carry their condition as the arrow label.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[/", "/]"
		switch {
		case node.ID == domain.EntryNodeID:
			opener, closer = "((", "))"
		case node.Layer == domain.LayerDelivery:
			opener, closer = "[[", "]]"
		}

		label := node.ID
		if len(node.Collect) > 0 {
			label = fmt.Sprintf("%s <br/> %s", node.ID, strings.Join(node.Collect, ", "))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, e := range g.Outgoing(node.ID) {
			safeTo := sanitizeMermaidID(e.Target)
			arrow := "-->"
			if cond := e.When.String(); cond != "" {
				safeCond := strings.ReplaceAll(cond, "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", safeCond)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Visited {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ":", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
