package graphdef

import (
	"fmt"
	"sort"

	"github.com/magicprompt/loom/pkg/domain"
)

// validate runs the load-time structural checks:
//   - the entry node exists and has zero incoming edges
//   - every node is reachable from the entry (warning only; preset-only
//     nodes may be activated by future presets)
//   - templates only reference fields guaranteed collected on every
//     unconditional path reaching the node (checked where unambiguous)
//
// Cycles are allowed at the definition level; the engine's visited-target
// exclusion guarantees forward progress at run time.
func (l *Loader) validate(g *domain.Graph) error {
	entry := g.Node(domain.EntryNodeID)
	if entry == nil {
		return &domain.LoadError{Reason: fmt.Sprintf("entry node %q not found", domain.EntryNodeID)}
	}
	if n := g.Incoming(domain.EntryNodeID); n > 0 {
		return &domain.LoadError{Reason: fmt.Sprintf("entry node %q has %d incoming edge(s)", domain.EntryNodeID, n)}
	}

	reachable := reach(g, domain.EntryNodeID)
	for _, n := range g.Nodes() {
		if !reachable[n.ID] {
			l.logger.Warn("node unreachable from entry", "node", n.ID, "layer", n.Layer)
		}
	}

	return l.checkTemplates(g, reachable)
}

// reach walks the edge set from start ignoring conditions.
func reach(g *domain.Graph, start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return visited
}

// checkTemplates verifies placeholder availability statically. A field is
// guaranteed at a node when every incoming edge comes from a finalized
// ancestor that guarantees it. Nodes inside cycles or behind conditional
// edges never finalize and are skipped here; the composer still enforces the
// property dynamically for them.
func (l *Loader) checkTemplates(g *domain.Graph, reachable map[string]bool) error {
	incoming := make(map[string][]domain.Edge)
	conditionalIn := make(map[string]bool)
	for _, n := range g.Nodes() {
		for _, e := range g.Outgoing(n.ID) {
			incoming[e.Target] = append(incoming[e.Target], e)
			if e.When != nil {
				conditionalIn[e.Target] = true
			}
		}
	}

	guaranteed := map[string]map[string]bool{
		domain.EntryNodeID: {},
	}

	// Fixpoint pass: finalize nodes whose every predecessor is finalized.
	for changed := true; changed; {
		changed = false
		for _, n := range g.Nodes() {
			if _, done := guaranteed[n.ID]; done || !reachable[n.ID] || conditionalIn[n.ID] {
				continue
			}
			ready := len(incoming[n.ID]) > 0
			var sets []map[string]bool
			for _, e := range incoming[n.ID] {
				src, ok := guaranteed[e.Source]
				if !ok {
					ready = false
					break
				}
				set := make(map[string]bool, len(src))
				for f := range src {
					set[f] = true
				}
				for _, f := range g.Node(e.Source).Collect {
					set[f] = true
				}
				sets = append(sets, set)
			}
			if !ready {
				continue
			}
			guaranteed[n.ID] = intersect(sets)
			changed = true
		}
	}

	for id, fields := range guaranteed {
		node := g.Node(id)
		for _, ph := range domain.Placeholders(node.Template) {
			if !fields[ph] {
				return &domain.LoadError{Reason: fmt.Sprintf(
					"node %q template references field %q not guaranteed by its ancestors", id, ph)}
			}
		}
	}
	return nil
}

func intersect(sets []map[string]bool) map[string]bool {
	if len(sets) == 0 {
		return map[string]bool{}
	}
	out := make(map[string]bool)
	keys := make([]string, 0, len(sets[0]))
	for k := range sets[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		inAll := true
		for _, s := range sets[1:] {
			if !s[k] {
				inAll = false
				break
			}
		}
		if inAll {
			out[k] = true
		}
	}
	return out
}
