// Package domain contains the core entities of the prompt graph: nodes,
// edges, conditions, presets, session state, the conversation record, and
// the export package. It has no dependencies on adapters or the runtime.
package domain
