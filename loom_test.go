package loom_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/internal/testutils"
	"github.com/magicprompt/loom/pkg/adapters/memory"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

const facadeGraph = `
version: "2.1"
nodes:
  - id: "idea:seed"
    layer: idea
    template: "опишите идею"
    collect: [concept]
  - id: "story:genre"
    layer: story
    template: "идея: {{concept}}"
    collect: [genre]
  - id: "delivery:export"
    layer: delivery
    template: "соберите промпт для {{concept}}"
    collect: [prompt_ru, prompt_en]
edges:
  - from: "idea:seed"
    to: "story:genre"
  - from: "story:genre"
    to: "delivery:export"
`

const facadePreset = `
preset: photography
nodes:
  - id: "technique:camera"
    layer: technique
    template: "подберите камеру для {{genre}}"
    collect: [camera]
edges:
  - from: "story:genre"
    to: "technique:camera"
    when:
      equals: {field: genre, value: photography}
`

func facadeInvoker() *testutils.ScriptedInvoker {
	return testutils.NewScriptedInvoker(map[string]ports.Reply{
		"idea:seed":        testutils.Reply(map[string]string{"concept": "old lighthouse"}),
		"story:genre":      testutils.Reply(map[string]string{"genre": "photography"}),
		"technique:camera": testutils.Reply(map[string]string{"camera": "Hasselblad 500C"}),
		"delivery:export":  testutils.Reply(map[string]string{"prompt_ru": "заброшенный маяк", "prompt_en": "an abandoned lighthouse"}),
	})
}

func TestNew_RejectsBrokenGraph(t *testing.T) {
	broken := `
version: "1.0"
nodes:
  - id: "idea:seed"
    layer: idea
    template: "hi"
    collect: [concept]
edges:
  - from: "idea:seed"
    to: "story:missing"
`
	_, err := loom.New(memory.NewSource(broken, nil), facadeInvoker())
	require.Error(t, err)
	var loadErr *domain.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestEngine_StartPersistsProject(t *testing.T) {
	store := memory.NewStore()
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker(),
		loom.WithStore(store))
	require.NoError(t, err)

	state, err := engine.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "idea:seed", state.Current)

	row, err := store.LoadProject(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "2.1", row.GraphVersion)
}

func TestEngine_StartGeneratesSessionID(t *testing.T) {
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker())
	require.NoError(t, err)

	state, err := engine.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, state.SessionID, 36)

	other, err := engine.Start(context.Background(), "")
	require.NoError(t, err)
	assert.NotEqual(t, state.SessionID, other.SessionID)
}

func TestEngine_RunAndExport(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker(),
		loom.WithStore(store),
		loom.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	ctx := context.Background()

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)
	state, err = engine.Run(ctx, state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, state.Status)

	pkg, err := engine.Export(ctx, state)
	require.NoError(t, err)

	assert.Equal(t, "s1", pkg.SessionID)
	assert.Equal(t, "2.1", pkg.GraphVersion)
	assert.Contains(t, pkg.RU, "заброшенный маяк")
	assert.Contains(t, pkg.EN, "an abandoned lighthouse")
	assert.Equal(t, "old lighthouse", pkg.Fields["concept"])
	assert.True(t, pkg.CreatedAt.Equal(fixed))

	// Export writes exactly once.
	_, err = engine.Export(ctx, state)
	assert.ErrorIs(t, err, domain.ErrExportExists)

	row, err := store.LoadExport(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, pkg.RU, row.Package.RU)
}

func TestEngine_ExportRequiresTermination(t *testing.T) {
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker())
	require.NoError(t, err)
	ctx := context.Background()

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)

	_, err = engine.Export(ctx, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminated")
}

func TestEngine_ResumeReplaysRun(t *testing.T) {
	store := memory.NewStore()
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker(),
		loom.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)
	done, err := engine.Run(ctx, state)
	require.NoError(t, err)

	resumed, err := engine.Resume(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, done.Status, resumed.Status)
	assert.Equal(t, done.Current, resumed.Current)
	assert.Equal(t, done.Context.Snapshot(), resumed.Context.Snapshot())
	assert.Len(t, resumed.Path, len(done.Path))
}

func TestEngine_ResumeReplaysForkJoin(t *testing.T) {
	store := memory.NewStore()
	engine, err := loom.New(
		memory.NewSource(facadeGraph, map[string]string{"photography": facadePreset}),
		facadeInvoker(),
		loom.WithPresets("photography"),
		loom.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)
	done, err := engine.Run(ctx, state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, done.Status)

	resumed, err := engine.Resume(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminated, resumed.Status)
	assert.Equal(t, done.Context.Snapshot(), resumed.Context.Snapshot())
	require.Len(t, resumed.Path, len(done.Path))
	for i := range done.Path {
		assert.Equal(t, done.Path[i].NodeID, resumed.Path[i].NodeID)
	}
}

func TestEngine_ResumeSurfacesMergeConflict(t *testing.T) {
	// Both branches collect mood with different values. The live run fails
	// with a merge conflict; both branches' rows are already durable by then,
	// so the replay must fail the same way instead of exporting one value.
	conflictGraph := `
version: "1.0"
nodes:
  - id: "idea:seed"
    layer: idea
    template: "describe the idea"
    collect: [concept]
  - id: "style:bright"
    layer: style
    template: "a bright take"
    collect: [mood]
  - id: "style:dark"
    layer: style
    template: "a dark take"
    collect: [mood]
edges:
  - from: "idea:seed"
    to: "style:bright"
  - from: "idea:seed"
    to: "style:dark"
`
	invoker := testutils.NewScriptedInvoker(map[string]ports.Reply{
		"idea:seed":    testutils.Reply(map[string]string{"concept": "harbor"}),
		"style:bright": testutils.Reply(map[string]string{"mood": "calm"}),
		"style:dark":   testutils.Reply(map[string]string{"mood": "tense"}),
	})
	store := memory.NewStore()
	engine, err := loom.New(memory.NewSource(conflictGraph, nil), invoker,
		loom.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = engine.Run(ctx, state)
	var conflict *domain.MergeConflict
	require.ErrorAs(t, err, &conflict)

	resumed, err := engine.Resume(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, resumed.Status)
	require.NotNil(t, resumed.Failure)
	assert.Equal(t, "merge_conflict", resumed.Failure.Kind)
	assert.Contains(t, resumed.Failure.Message, "calm")
	assert.Contains(t, resumed.Failure.Message, "tense")

	// The replayed context keeps the trunk only; neither value wins.
	_, ok := resumed.Context.Get("mood")
	assert.False(t, ok)

	_, err = engine.Export(ctx, resumed)
	require.Error(t, err)
}

func TestEngine_ResumeUnknownSession(t *testing.T) {
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker(),
		loom.WithStore(memory.NewStore()))
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_ResumeWithoutStore(t *testing.T) {
	engine, err := loom.New(memory.NewSource(facadeGraph, nil), facadeInvoker())
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), "s1")
	require.Error(t, err)
}

func TestEngine_WithPresets(t *testing.T) {
	engine, err := loom.New(
		memory.NewSource(facadeGraph, map[string]string{"photography": facadePreset}),
		facadeInvoker(),
		loom.WithPresets("photography"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NotNil(t, engine.Graph().Node("technique:camera"))
	assert.Equal(t, []string{"photography"}, engine.Graph().Presets())

	state, err := engine.Start(ctx, "s1")
	require.NoError(t, err)
	state, err = engine.Run(ctx, state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, state.Status)

	snapshot := state.Context.Snapshot()
	assert.Equal(t, "Hasselblad 500C", snapshot["camera"])
	assert.Equal(t, "заброшенный маяк", snapshot["prompt_ru"])
}
