// Package runtime implements the traversal state machine: one step per
// visited node (compose, invoke, transform, collect, record, evaluate
// edges), fork/join for fan-out, and failure handling that always leaves the
// session at its last good conversation record.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
	"github.com/magicprompt/loom/pkg/transform"
)

// Engine drives one or more sessions over a shared immutable graph. The
// graph is read-only; all mutable state lives in the per-session
// domain.State, so engines are safe for concurrent sessions.
type Engine struct {
	graph      *domain.Graph
	invoker    ports.Invoker
	store      ports.SessionStore
	transforms *transform.Registry
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithStore enables persistence: a step row is appended after every
// successful step.
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithTransforms replaces the default transform registry.
func WithTransforms(reg *transform.Registry) Option {
	return func(e *Engine) { e.transforms = reg }
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source. Tests use it to make conversation
// records reproducible.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over a loaded graph and a model invoker.
func NewEngine(graph *domain.Graph, invoker ports.Invoker, opts ...Option) *Engine {
	e := &Engine{
		graph:      graph,
		invoker:    invoker,
		transforms: transform.NewRegistry(),
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph exposes the engine's immutable graph for introspection.
func (e *Engine) Graph() *domain.Graph { return e.graph }

// Step executes the step algorithm once for the session's current node.
// It never mutates the input state: on success it returns the advanced
// state, on failure it returns a clone annotated with the failure and the
// context exactly as of the last completed step. Retryable failures leave
// the status at StatusAtNode so the caller can re-enter Step after external
// correction.
func (e *Engine) Step(ctx context.Context, state *domain.State) (*domain.State, error) {
	if state.Terminal() {
		return state, fmt.Errorf("session %q is already %s", state.SessionID, state.Status)
	}
	if state.Status == domain.StatusBranching {
		return state, fmt.Errorf("session %q is branching; use Run to join the branches", state.SessionID)
	}
	node := e.graph.Node(state.Current)
	if node == nil {
		return state, fmt.Errorf("session %q positioned at unknown node %q", state.SessionID, state.Current)
	}

	e.emitNodeEnter(ctx, state, node)

	snapshot := state.Context.Snapshot()
	prompt, err := Compose(node, snapshot)
	if err != nil {
		return e.fail(ctx, state, node.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return state, err
	}

	attempt := state.Attempts + 1
	start := e.now()
	e.emitLLM(ctx, e.hooks.OnLLMCall, state, node.ID, attempt, 0, false)
	reply, err := e.invoker.Invoke(ctx, ports.Instruction{
		NodeID:  node.ID,
		Text:    prompt,
		Collect: append([]string(nil), node.Collect...),
	})
	elapsed := e.now().Sub(start)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		e.emitLLM(ctx, e.hooks.OnLLMReturn, state, node.ID, attempt, elapsed, true)
		return e.fail(ctx, state, node.ID, &domain.LLMError{
			NodeID:  node.ID,
			Attempt: attempt,
			Timeout: timeout,
			Err:     err,
		})
	}
	e.emitLLM(ctx, e.hooks.OnLLMReturn, state, node.ID, attempt, elapsed, false)

	fields, err := e.transforms.Apply(node.Transforms, reply.Fields, snapshot)
	if err != nil {
		return e.fail(ctx, state, node.ID, err)
	}

	var missing []string
	for _, f := range node.Collect {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return e.fail(ctx, state, node.ID, &domain.CollectionError{NodeID: node.ID, Missing: missing})
	}

	next := state.Clone()
	for k, v := range fields {
		next.Context.Set(k, v)
	}
	record := domain.StepRecord{
		NodeID:    node.ID,
		Prompt:    prompt,
		RawReply:  reply.Raw,
		Fields:    fields,
		Timestamp: e.now().UTC(),
	}
	next.Path = append(next.Path, record)
	next.Visited[node.ID] = true
	next.Attempts = 0
	next.Failure = nil

	if e.store != nil {
		row := ports.StepRow{
			SessionID: next.SessionID,
			Seq:       len(next.Path),
			Branch:    next.Branch,
			NodeID:    record.NodeID,
			Prompt:    record.Prompt,
			RawReply:  record.RawReply,
			Fields:    record.Fields,
			Timestamp: record.Timestamp,
		}
		if err := e.store.AppendStep(ctx, row); err != nil {
			// The step is not durable; report against the unchanged state so
			// re-entering Step repeats the whole node.
			return state, fmt.Errorf("persisting step for node %q: %w", node.ID, err)
		}
	}

	e.advance(ctx, next, node)
	e.emitNodeLeave(ctx, next, node)
	return next, nil
}

// advance runs step 5 and 6 of the step algorithm: evaluate outgoing edges
// against the updated snapshot and pick the next status. Edges whose target
// was already visited in this session are excluded, which bounds every
// traversal by the number of distinct nodes even when the definition has
// cycles.
func (e *Engine) advance(ctx context.Context, state *domain.State, node *domain.Node) {
	snapshot := state.Context.Snapshot()
	var eligible []string
	for _, edge := range e.graph.Outgoing(node.ID) {
		if state.Visited[edge.Target] {
			continue
		}
		if edge.When.Eval(snapshot) {
			eligible = append(eligible, edge.Target)
		}
	}

	switch len(eligible) {
	case 0:
		state.Status = domain.StatusTerminated
		state.EligibleTargets = nil
	case 1:
		state.Status = domain.StatusAtNode
		state.Current = eligible[0]
		state.EligibleTargets = nil
	default:
		sort.Strings(eligible)
		state.Status = domain.StatusBranching
		state.EligibleTargets = eligible
		if e.hooks.OnBranch != nil {
			e.hooks.OnBranch(ctx, &domain.BranchEvent{
				Timestamp: e.now(),
				SessionID: state.SessionID,
				NodeID:    node.ID,
				Targets:   eligible,
			})
		}
	}
}

// Reposition re-evaluates the outgoing edges of the state's current node,
// which must be the last visited one. Resume uses it to recover the status
// (at-node, branching, terminated) from a replayed conversation record.
func (e *Engine) Reposition(ctx context.Context, state *domain.State) {
	node := e.graph.Node(state.Current)
	if node == nil {
		return
	}
	e.advance(ctx, state, node)
}

// fail annotates a clone of the state with the failure, leaving context and
// path untouched. Non-retryable failures move the session to StatusFailed.
func (e *Engine) fail(ctx context.Context, state *domain.State, nodeID string, cause error) (*domain.State, error) {
	failed := state.Clone()
	failed.Attempts = state.Attempts + 1
	failed.Failure = &domain.Failure{
		NodeID:  nodeID,
		Kind:    domain.FailureKind(cause),
		Message: cause.Error(),
	}
	if !domain.Retryable(cause) {
		failed.Status = domain.StatusFailed
	}
	e.logger.Error("step failed",
		"session", state.SessionID,
		"node", nodeID,
		"kind", failed.Failure.Kind,
		"attempt", failed.Attempts,
		"error", cause,
	)
	if e.hooks.OnFailure != nil {
		e.hooks.OnFailure(ctx, &domain.FailureEvent{
			Timestamp: e.now(),
			SessionID: state.SessionID,
			NodeID:    nodeID,
			Kind:      failed.Failure.Kind,
		})
	}
	return failed, cause
}

func (e *Engine) emitNodeEnter(ctx context.Context, state *domain.State, node *domain.Node) {
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.StepEvent{
			Timestamp: e.now(),
			SessionID: state.SessionID,
			NodeID:    node.ID,
			Layer:     node.Layer,
		})
	}
}

func (e *Engine) emitNodeLeave(ctx context.Context, state *domain.State, node *domain.Node) {
	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.StepEvent{
			Timestamp: e.now(),
			SessionID: state.SessionID,
			NodeID:    node.ID,
			Layer:     node.Layer,
		})
	}
}

func (e *Engine) emitLLM(ctx context.Context, hook func(context.Context, *domain.LLMEvent), state *domain.State, nodeID string, attempt int, d time.Duration, isErr bool) {
	if hook != nil {
		hook(ctx, &domain.LLMEvent{
			Timestamp: e.now(),
			SessionID: state.SessionID,
			NodeID:    nodeID,
			Attempt:   attempt,
			Duration:  d,
			IsError:   isErr,
		})
	}
}
