package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/internal/runtime"
	"github.com/magicprompt/loom/internal/testutils"
	"github.com/magicprompt/loom/pkg/adapters/memory"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// linearGraph is a three node chain: entry -> story -> delivery, with the
// story -> delivery edge unconditional.
func linearGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := domain.NewGraph("test", nil,
		[]domain.Node{
			{ID: domain.EntryNodeID, Layer: domain.LayerIdea, Template: "describe the idea", Collect: []string{"concept"}},
			{ID: "story:genre", Layer: domain.LayerStory, Template: "idea: {{concept}}", Collect: []string{"genre"}},
			{ID: "delivery:export", Layer: domain.LayerDelivery, Template: "genre: {{genre}}", Collect: []string{"prompt_ru", "prompt_en"}},
		},
		[]domain.Edge{
			{Source: domain.EntryNodeID, Target: "story:genre"},
			{Source: "story:genre", Target: "delivery:export"},
		},
	)
	require.NoError(t, err)
	return g
}

func linearReplies() map[string]ports.Reply {
	return map[string]ports.Reply{
		domain.EntryNodeID: testutils.Reply(map[string]string{"concept": "old lighthouse"}),
		"story:genre":      testutils.Reply(map[string]string{"genre": "illustration"}),
		"delivery:export":  testutils.Reply(map[string]string{"prompt_ru": "маяк", "prompt_en": "a lighthouse"}),
	}
}

func TestEngine_Step_AdvancesAndCollects(t *testing.T) {
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()))
	state := domain.NewState("s1")

	next, err := engine.Step(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAtNode, next.Status)
	assert.Equal(t, "story:genre", next.Current)
	assert.Len(t, next.Path, 1)
	assert.True(t, next.Visited[domain.EntryNodeID])

	got, ok := next.Context.Get("concept")
	assert.True(t, ok)
	assert.Equal(t, "old lighthouse", got)

	// The input state is never mutated.
	assert.Equal(t, domain.EntryNodeID, state.Current)
	assert.Equal(t, 0, state.Context.Len())
}

func TestEngine_Step_RecordsPromptAndReply(t *testing.T) {
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()))
	state := domain.NewState("s1")

	next, err := engine.Step(context.Background(), state)
	require.NoError(t, err)
	next, err = engine.Step(context.Background(), next)
	require.NoError(t, err)

	require.Len(t, next.Path, 2)
	record := next.Path[1]
	assert.Equal(t, "story:genre", record.NodeID)
	// Placeholders are expanded from the accumulated context.
	assert.Equal(t, "idea: old lighthouse", record.Prompt)
	assert.NotEmpty(t, record.RawReply)
	assert.False(t, record.Timestamp.IsZero())
}

func TestEngine_Step_TerminatesWhenNoEdgeEligible(t *testing.T) {
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()))

	state := domain.NewState("s1")
	var err error
	for i := 0; i < 3; i++ {
		state, err = engine.Step(context.Background(), state)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.StatusTerminated, state.Status)

	// A terminated session rejects further steps.
	_, err = engine.Step(context.Background(), state)
	assert.Error(t, err)
}

func TestEngine_Step_TemplateFailureIsNotRetryable(t *testing.T) {
	g, err := domain.NewGraph("test", nil,
		[]domain.Node{
			{ID: domain.EntryNodeID, Layer: domain.LayerIdea, Template: "needs {{nothing_collects_this}}", Collect: []string{"concept"}},
		},
		nil,
	)
	require.NoError(t, err)
	engine := runtime.NewEngine(g, testutils.NewScriptedInvoker(nil))

	state := domain.NewState("s1")
	failed, err := engine.Step(context.Background(), state)
	require.Error(t, err)

	var templateErr *domain.TemplateError
	require.ErrorAs(t, err, &templateErr)
	assert.Equal(t, "nothing_collects_this", templateErr.Field)

	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "template", failed.Failure.Kind)
	// Context and path stay at the last completed step.
	assert.Equal(t, 0, failed.Context.Len())
	assert.Empty(t, failed.Path)
}

func TestEngine_Step_CollectionFailureIsRetryable(t *testing.T) {
	replies := map[string]ports.Reply{
		domain.EntryNodeID: {Raw: "no usable fields", Fields: map[string]string{"concept": ""}},
	}
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(replies))

	state := domain.NewState("s1")
	failed, err := engine.Step(context.Background(), state)
	require.Error(t, err)

	var collErr *domain.CollectionError
	require.ErrorAs(t, err, &collErr)
	assert.Equal(t, []string{"concept"}, collErr.Missing)

	// Retryable: the session stays at the node, counting attempts.
	assert.Equal(t, domain.StatusAtNode, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Empty(t, failed.Path)

	again, err := engine.Step(context.Background(), failed)
	require.Error(t, err)
	assert.Equal(t, 2, again.Attempts)
}

func TestEngine_Step_LLMFailure(t *testing.T) {
	boom := errors.New("connection refused")
	invoker := ports.InvokerFunc(func(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
		return nil, boom
	})
	engine := runtime.NewEngine(linearGraph(t), invoker)

	failed, err := engine.Step(context.Background(), domain.NewState("s1"))
	require.Error(t, err)

	var llmErr *domain.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 1, llmErr.Attempt)
	assert.False(t, llmErr.Timeout)
	assert.True(t, domain.Retryable(err))
	assert.Equal(t, domain.StatusAtNode, failed.Status)
}

func TestEngine_Step_LLMTimeout(t *testing.T) {
	invoker := ports.InvokerFunc(func(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
		return nil, context.DeadlineExceeded
	})
	engine := runtime.NewEngine(linearGraph(t), invoker)

	failed, err := engine.Step(context.Background(), domain.NewState("s1"))
	require.Error(t, err)

	var llmErr *domain.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.True(t, llmErr.Timeout)
	assert.Equal(t, "llm_timeout", domain.FailureKind(err))
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "llm_timeout", failed.Failure.Kind)
}

func TestEngine_Step_CancelledContext(t *testing.T) {
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := domain.NewState("s1")
	out, err := engine.Step(ctx, state)
	require.ErrorIs(t, err, context.Canceled)
	// No record is written for a cancelled step.
	assert.Empty(t, out.Path)
	assert.Equal(t, 0, out.Context.Len())
}

func TestEngine_Step_VisitedTargetExcluded(t *testing.T) {
	// entry -> loop -> entry is a cycle; the second evaluation of the edge
	// back to entry must be excluded because entry was already visited.
	g, err := domain.NewGraph("test", nil,
		[]domain.Node{
			{ID: domain.EntryNodeID, Layer: domain.LayerIdea, Template: "start", Collect: []string{"concept"}},
			{ID: "story:loop", Layer: domain.LayerStory, Template: "loop", Collect: []string{"genre"}},
		},
		[]domain.Edge{
			{Source: domain.EntryNodeID, Target: "story:loop"},
			{Source: "story:loop", Target: domain.EntryNodeID},
		},
	)
	require.NoError(t, err)
	replies := map[string]ports.Reply{
		domain.EntryNodeID: testutils.Reply(map[string]string{"concept": "c"}),
		"story:loop":       testutils.Reply(map[string]string{"genre": "g"}),
	}
	engine := runtime.NewEngine(g, testutils.NewScriptedInvoker(replies))

	state, err := engine.Run(context.Background(), domain.NewState("s1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, state.Status)
	assert.Len(t, state.Path, 2)
}

func TestEngine_Step_PersistsRows(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateProject(context.Background(), ports.ProjectRow{
		SessionID: "s1", GraphVersion: "test", CreatedAt: time.Now(),
	}))

	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()),
		runtime.WithStore(store))

	state, err := engine.Run(context.Background(), domain.NewState("s1"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, state.Status)

	rows, err := store.LoadSteps(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.EntryNodeID, rows[0].NodeID)
	assert.Equal(t, 1, rows[0].Seq)
	assert.Equal(t, "delivery:export", rows[2].NodeID)
}

func TestEngine_Step_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()),
		runtime.WithStore(failingStore{}))

	state := domain.NewState("s1")
	out, err := engine.Step(context.Background(), state)
	require.Error(t, err)
	assert.Same(t, state, out)
	assert.Empty(t, out.Path)
}

func TestEngine_Hooks(t *testing.T) {
	var enters, leaves, calls, returns []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.StepEvent) { enters = append(enters, e.NodeID) },
		OnNodeLeave: func(ctx context.Context, e *domain.StepEvent) { leaves = append(leaves, e.NodeID) },
		OnLLMCall:   func(ctx context.Context, e *domain.LLMEvent) { calls = append(calls, e.NodeID) },
		OnLLMReturn: func(ctx context.Context, e *domain.LLMEvent) { returns = append(returns, e.NodeID) },
	}
	engine := runtime.NewEngine(linearGraph(t), testutils.NewScriptedInvoker(linearReplies()),
		runtime.WithHooks(hooks))

	_, err := engine.Run(context.Background(), domain.NewState("s1"))
	require.NoError(t, err)

	want := []string{domain.EntryNodeID, "story:genre", "delivery:export"}
	assert.Equal(t, want, enters)
	assert.Equal(t, want, leaves)
	assert.Equal(t, want, calls)
	assert.Equal(t, want, returns)
}

// failingStore rejects every append.
type failingStore struct{}

func (failingStore) CreateProject(context.Context, ports.ProjectRow) error { return nil }
func (failingStore) LoadProject(context.Context, string) (*ports.ProjectRow, error) {
	return nil, domain.ErrSessionNotFound
}
func (failingStore) AppendStep(context.Context, ports.StepRow) error {
	return errors.New("disk full")
}
func (failingStore) LoadSteps(context.Context, string) ([]ports.StepRow, error) { return nil, nil }
func (failingStore) WriteExport(context.Context, ports.ExportRow) error         { return nil }
func (failingStore) LoadExport(context.Context, string) (*ports.ExportRow, error) {
	return nil, domain.ErrSessionNotFound
}
func (failingStore) ListSessions(context.Context) ([]string, error) { return nil, nil }
func (failingStore) Delete(context.Context, string) error           { return nil }
