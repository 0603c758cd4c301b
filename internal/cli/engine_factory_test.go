package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/adapters/file"
	"github.com/magicprompt/loom/pkg/adapters/memory"
	"github.com/magicprompt/loom/pkg/ports"
)

func TestCreateStore(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		store, err := createStore(RunOptions{})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("memory", func(t *testing.T) {
		store, err := createStore(RunOptions{Store: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("file", func(t *testing.T) {
		store, err := createStore(RunOptions{Store: "file", DataDir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &file.Store{}, store)
	})

	t.Run("unknown store errors", func(t *testing.T) {
		_, err := createStore(RunOptions{Store: "cassandra"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cassandra")
	})
}

func TestCreateSource(t *testing.T) {
	t.Run("embedded default when no dir given", func(t *testing.T) {
		source := createSource(RunOptions{})
		ids, err := source.ListPresets(context.Background())
		require.NoError(t, err)
		assert.Contains(t, ids, "photography")
	})

	t.Run("directory source", func(t *testing.T) {
		source := createSource(RunOptions{GraphDir: t.TempDir()})
		_, err := source.Base(context.Background())
		assert.Error(t, err) // empty dir has no base.yaml
	})
}

func TestNewInvoker_FlagOverrides(t *testing.T) {
	invoker, err := NewInvoker(RunOptions{
		OllamaURL: "http://example.test:11434/v1",
		Model:     "llama3",
	})
	require.NoError(t, err)
	assert.NotNil(t, invoker)
}

func TestCreateEngine_UsesEmbeddedGraph(t *testing.T) {
	invoker := ports.InvokerFunc(func(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
		return &ports.Reply{}, nil
	})

	engine, sessions, err := CreateEngine(RunOptions{Presets: []string{"photography"}}, invoker, logging.NewNop())
	require.NoError(t, err)
	require.NotNil(t, sessions)

	assert.NotNil(t, engine.Graph().Node("technique:film"))
	assert.Equal(t, []string{"photography"}, engine.Graph().Presets())
}

func TestCreateEngine_UnknownPreset(t *testing.T) {
	invoker := ports.InvokerFunc(func(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
		return &ports.Reply{}, nil
	})

	_, _, err := CreateEngine(RunOptions{Presets: []string{"watercolor"}}, invoker, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watercolor")
}
