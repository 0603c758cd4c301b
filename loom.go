// Package loom guides a user from an unstructured idea to a structured,
// bilingual prompt package by walking a declarative graph of question
// nodes, accumulating answers into a context, and invoking a language model
// at each step.
package loom

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magicprompt/loom/internal/assemble"
	"github.com/magicprompt/loom/internal/graphdef"
	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/internal/runtime"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
	"github.com/magicprompt/loom/pkg/transform"
)

// Version is the library version, also reported by the CLI and MCP server.
var Version = "0.3.0"

// Engine is the high-level entry point for the library. It owns a loaded
// graph, the traversal runtime, and the optional persistence collaborator.
type Engine struct {
	graph  *domain.Graph
	rt     *runtime.Engine
	store  ports.SessionStore
	logger *slog.Logger
	now    func() time.Time

	presets    []string
	hooks      domain.LifecycleHooks
	transforms *transform.Registry
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithPresets selects the presets merged into the base graph at load time.
func WithPresets(ids ...string) Option {
	return func(e *Engine) { e.presets = append(e.presets, ids...) }
}

// WithStore enables the persistence collaborator.
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithTransforms replaces the default transform registry.
func WithTransforms(reg *transform.Registry) Option {
	return func(e *Engine) { e.transforms = reg }
}

// WithClock overrides the time source, for reproducible records in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New loads the graph from source (merging any requested presets) and wires
// the traversal runtime around invoker.
func New(source ports.GraphSource, invoker ports.Invoker, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:     logging.NewNop(),
		now:        time.Now,
		transforms: transform.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}

	loader := graphdef.NewLoader(source, graphdef.WithLogger(e.logger))
	graph, err := loader.Load(context.Background(), e.presets...)
	if err != nil {
		return nil, err
	}
	e.graph = graph

	rtOpts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithHooks(e.hooks),
		runtime.WithTransforms(e.transforms),
		runtime.WithClock(e.now),
	}
	if e.store != nil {
		rtOpts = append(rtOpts, runtime.WithStore(e.store))
	}
	e.rt = runtime.NewEngine(graph, invoker, rtOpts...)
	return e, nil
}

// Graph exposes the loaded immutable graph.
func (e *Engine) Graph() *domain.Graph { return e.graph }

// Start opens a new session positioned at the entry node. An empty
// sessionID gets a generated one.
func (e *Engine) Start(ctx context.Context, sessionID string) (*domain.State, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state := domain.NewState(sessionID)
	if e.store != nil {
		row := ports.ProjectRow{
			SessionID:    sessionID,
			GraphVersion: e.graph.Version(),
			Presets:      e.graph.Presets(),
			CreatedAt:    e.now().UTC(),
		}
		if err := e.store.CreateProject(ctx, row); err != nil {
			return nil, fmt.Errorf("creating project %q: %w", sessionID, err)
		}
	}
	e.logger.Info("session started", "session", sessionID, "entry", state.Current)
	return state, nil
}

// Step advances the session by one node visit.
func (e *Engine) Step(ctx context.Context, state *domain.State) (*domain.State, error) {
	return e.rt.Step(ctx, state)
}

// Run advances the session until it terminates or fails, forking and joining
// branches as needed.
func (e *Engine) Run(ctx context.Context, state *domain.State) (*domain.State, error) {
	return e.rt.Run(ctx, state)
}

// Resume rebuilds a session from its persisted conversation record so the
// step algorithm can be re-entered where it left off.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*domain.State, error) {
	if e.store == nil {
		return nil, fmt.Errorf("resume requires a session store")
	}
	if _, err := e.store.LoadProject(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := e.store.LoadSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := domain.NewState(sessionID)
	var branchRows []ports.StepRow
	for _, row := range rows {
		if row.Branch != "" {
			// Branch rows carry concurrent writes; they are folded back in
			// one join pass below instead of merging last-wins.
			branchRows = append(branchRows, row)
			continue
		}
		for k, v := range row.Fields {
			state.Context.Set(k, v)
		}
		state.Visited[row.NodeID] = true
		state.Path = append(state.Path, domain.StepRecord{
			NodeID:    row.NodeID,
			Prompt:    row.Prompt,
			RawReply:  row.RawReply,
			Fields:    row.Fields,
			Timestamp: row.Timestamp,
		})
		state.Current = row.NodeID
	}
	if len(branchRows) > 0 {
		if err := e.rt.Rejoin(state, branchRows); err != nil {
			e.logger.Warn("session resumed into failed merge", "session", sessionID, "error", err)
			return state, nil
		}
	}
	if len(rows) > 0 {
		e.rt.Reposition(ctx, state)
	}
	e.logger.Info("session resumed", "session", sessionID, "steps", len(rows), "status", state.Status)
	return state, nil
}

// Export assembles the bilingual package from a terminated session and, when
// a store is configured, writes it exactly once.
func (e *Engine) Export(ctx context.Context, state *domain.State) (*domain.ExportPackage, error) {
	if state.Status != domain.StatusTerminated {
		return nil, fmt.Errorf("session %q is %s, not terminated", state.SessionID, state.Status)
	}
	pkg, err := assemble.Assemble(state.Context.Snapshot(), state.Path, assemble.Meta{
		SessionID:    state.SessionID,
		GraphVersion: e.graph.Version(),
		Presets:      e.graph.Presets(),
	})
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		row := ports.ExportRow{
			SessionID: state.SessionID,
			Package:   *pkg,
			CreatedAt: pkg.CreatedAt,
		}
		if err := e.store.WriteExport(ctx, row); err != nil {
			return nil, fmt.Errorf("writing export for %q: %w", state.SessionID, err)
		}
	}
	return pkg, nil
}
