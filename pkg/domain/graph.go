package domain

import (
	"fmt"
	"sort"
)

// EntryNodeID is the fixed entry point of every graph.
const EntryNodeID = "idea:seed"

// Well-known layers. Layers are advisory grouping only; actual ordering is
// edge-driven.
const (
	LayerIdea      = "idea"
	LayerStory     = "story"
	LayerStyle     = "style"
	LayerTechnique = "technique"
	LayerDelivery  = "delivery"
)

// Node is a single question/action step in the prompt graph.
type Node struct {
	// ID is globally unique and namespaced as "layer:name".
	ID    string `json:"id" yaml:"id"`
	Layer string `json:"layer" yaml:"layer"`

	// Template is the instruction sent to the model, with {{field}}
	// placeholders resolved from context at composition time.
	Template string `json:"template" yaml:"template"`

	// Collect names the fields the node's reply must populate.
	// The step fails if the transform pipeline leaves any of them empty.
	Collect []string `json:"collect" yaml:"collect"`

	// Transforms is an ordered list of registered transform names applied
	// to the raw reply before storage.
	Transforms []string `json:"transforms,omitempty" yaml:"transforms,omitempty"`

	// SummaryKey selects the collected field shown in progress output.
	SummaryKey string `json:"summary_key,omitempty" yaml:"summary_key,omitempty"`
}

// Edge is a directed transition between two nodes, optionally gated by a
// condition over collected context. A nil condition is always eligible.
type Edge struct {
	Source string     `json:"source" yaml:"from"`
	Target string     `json:"target" yaml:"to"`
	When   *Condition `json:"when,omitempty" yaml:"when,omitempty"`
}

// Preset is a named bundle of extra nodes and edges layered onto the base
// graph. A preset merges atomically: either all of its nodes and edges land,
// or none do.
type Preset struct {
	ID    string `json:"id" yaml:"preset"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Graph is the immutable, load-once definition shared read-only across all
// sessions. Nodes live in an arena keyed by id; edges are adjacency lists.
type Graph struct {
	version string
	presets []string
	nodes   map[string]*Node
	out     map[string][]Edge
}

// NewGraph assembles a graph from nodes and edges. It enforces id uniqueness
// and edge endpoint existence; richer validation lives in the loader.
func NewGraph(version string, presets []string, nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		version: version,
		presets: append([]string(nil), presets...),
		nodes:   make(map[string]*Node, len(nodes)),
		out:     make(map[string][]Edge),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, &LoadError{Reason: "node missing id"}
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, &LoadError{Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		g.nodes[n.ID] = &n
	}
	for _, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, &LoadError{Reason: fmt.Sprintf("edge references unknown source %q", e.Source)}
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, &LoadError{Reason: fmt.Sprintf("edge references unknown target %q", e.Target)}
		}
		g.out[e.Source] = append(g.out[e.Source], e)
	}
	return g, nil
}

// Version reports the graph definition version.
func (g *Graph) Version() string { return g.version }

// Presets reports the preset ids merged into this graph, in merge order.
func (g *Graph) Presets() []string { return append([]string(nil), g.presets...) }

// Node returns the node for id, or nil if absent.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// Nodes returns all nodes sorted by id for deterministic iteration.
func (g *Graph) Nodes() []Node {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Outgoing returns the edges leaving node id, in definition order.
func (g *Graph) Outgoing(id string) []Edge {
	return append([]Edge(nil), g.out[id]...)
}

// Incoming counts edges arriving at node id.
func (g *Graph) Incoming(id string) int {
	n := 0
	for _, edges := range g.out {
		for _, e := range edges {
			if e.Target == id {
				n++
			}
		}
	}
	return n
}
