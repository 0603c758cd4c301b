// Package graphdef loads and validates graph definitions: the base graph
// document plus any requested presets, merged into one immutable
// domain.Graph before traversal starts.
package graphdef

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// document is the raw YAML shape shared by base graphs and presets.
type document struct {
	Version string    `mapstructure:"version"`
	Entry   string    `mapstructure:"entry"`
	Preset  string    `mapstructure:"preset"`
	Nodes   []nodeDoc `mapstructure:"nodes"`
	Edges   []edgeDoc `mapstructure:"edges"`
}

type nodeDoc struct {
	ID         string   `mapstructure:"id"`
	Layer      string   `mapstructure:"layer"`
	Template   string   `mapstructure:"template"`
	Collect    []string `mapstructure:"collect"`
	Transforms []string `mapstructure:"transforms"`
	SummaryKey string   `mapstructure:"summary_key"`
}

type edgeDoc struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
	When any    `mapstructure:"when"`
}

// Loader builds graphs from a GraphSource.
type Loader struct {
	source ports.GraphSource
	logger *slog.Logger
}

// Option configures the Loader.
type Option func(*Loader)

// WithLogger sets the logger used for non-fatal findings (orphan warnings).
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader over the given source.
func NewLoader(source ports.GraphSource, opts ...Option) *Loader {
	l := &Loader{source: source, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the base document, merges the requested presets atomically,
// and validates the result. Any defect is a *domain.LoadError; loading never
// partially succeeds.
func (l *Loader) Load(ctx context.Context, presetIDs ...string) (*domain.Graph, error) {
	raw, err := l.source.Base(ctx)
	if err != nil {
		return nil, &domain.LoadError{Reason: fmt.Sprintf("fetching base graph: %v", err)}
	}
	base, err := decode(raw)
	if err != nil {
		return nil, &domain.LoadError{Reason: fmt.Sprintf("base graph: %v", err)}
	}
	if base.Entry != "" && base.Entry != domain.EntryNodeID {
		return nil, &domain.LoadError{Reason: fmt.Sprintf("entry node is fixed to %q, got %q", domain.EntryNodeID, base.Entry)}
	}

	nodes, edges, err := convert(base)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			return nil, &domain.LoadError{Reason: fmt.Sprintf("duplicate node id %q in base graph", n.ID)}
		}
		seen[n.ID] = true
	}

	// Presets merge as one unit each: a collision aborts the whole load and
	// the base graph is left untouched.
	for _, id := range presetIDs {
		raw, err := l.source.Preset(ctx, id)
		if err != nil {
			return nil, &domain.LoadError{Reason: fmt.Sprintf("fetching preset %q: %v", id, err)}
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, &domain.LoadError{Reason: fmt.Sprintf("preset %q: %v", id, err)}
		}
		pNodes, pEdges, err := convert(doc)
		if err != nil {
			return nil, err
		}
		for _, n := range pNodes {
			if seen[n.ID] {
				return nil, &domain.LoadError{Reason: fmt.Sprintf("preset %q collides on node id %q", id, n.ID)}
			}
			seen[n.ID] = true
		}
		nodes = append(nodes, pNodes...)
		edges = append(edges, pEdges...)
	}

	g, err := domain.NewGraph(base.Version, presetIDs, nodes, edges)
	if err != nil {
		return nil, err
	}
	if err := l.validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func decode(raw []byte) (*document, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	var doc document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("invalid document shape: %w", err)
	}
	return &doc, nil
}

func convert(doc *document) ([]domain.Node, []domain.Edge, error) {
	nodes := make([]domain.Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		if nd.ID == "" {
			return nil, nil, &domain.LoadError{Reason: "node missing id"}
		}
		if len(nd.Collect) == 0 {
			return nil, nil, &domain.LoadError{Reason: fmt.Sprintf("node %q collects no fields", nd.ID)}
		}
		nodes = append(nodes, domain.Node{
			ID:         nd.ID,
			Layer:      nd.Layer,
			Template:   nd.Template,
			Collect:    nd.Collect,
			Transforms: nd.Transforms,
			SummaryKey: nd.SummaryKey,
		})
	}
	edges := make([]domain.Edge, 0, len(doc.Edges))
	for _, ed := range doc.Edges {
		cond, err := parseCondition(ed.When)
		if err != nil {
			return nil, nil, &domain.LoadError{Reason: fmt.Sprintf("edge %s -> %s: %v", ed.From, ed.To, err)}
		}
		if err := cond.Validate(); err != nil {
			return nil, nil, &domain.LoadError{Reason: fmt.Sprintf("edge %s -> %s: %v", ed.From, ed.To, err)}
		}
		edges = append(edges, domain.Edge{Source: ed.From, Target: ed.To, When: cond})
	}
	return nodes, edges, nil
}
