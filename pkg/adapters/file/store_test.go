package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/pkg/adapters/file"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

func TestStore_ProjectRoundTrip(t *testing.T) {
	store := file.NewStore(t.TempDir())
	ctx := context.Background()

	_, err := store.LoadProject(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	row := ports.ProjectRow{
		SessionID:    "s1",
		GraphVersion: "1.0",
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateProject(ctx, row))

	got, err := store.LoadProject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, row, *got)
}

func TestStore_CreateProjectRequiresID(t *testing.T) {
	store := file.NewStore(t.TempDir())
	err := store.CreateProject(context.Background(), ports.ProjectRow{})
	require.Error(t, err)
}

func TestStore_StepsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := file.NewStore(dir)
	require.NoError(t, store.CreateProject(ctx, ports.ProjectRow{SessionID: "s1"}))
	require.NoError(t, store.AppendStep(ctx, ports.StepRow{SessionID: "s1", Seq: 1, NodeID: "idea:seed"}))
	require.NoError(t, store.AppendStep(ctx, ports.StepRow{SessionID: "s1", Seq: 2, NodeID: "story:genre"}))

	// A fresh store over the same directory sees the same rows.
	reopened := file.NewStore(dir)
	rows, err := reopened.LoadSteps(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "story:genre", rows[1].NodeID)
}

func TestStore_LoadStepsWithoutFile(t *testing.T) {
	store := file.NewStore(t.TempDir())
	rows, err := store.LoadSteps(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ExportWriteOnce(t *testing.T) {
	store := file.NewStore(t.TempDir())
	ctx := context.Background()

	row := ports.ExportRow{
		SessionID: "s1",
		Package:   domain.ExportPackage{SessionID: "s1", RU: "ру", EN: "en"},
	}
	require.NoError(t, store.WriteExport(ctx, row))
	assert.ErrorIs(t, store.WriteExport(ctx, row), domain.ErrExportExists)

	got, err := store.LoadExport(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Package.EN)
}

func TestStore_NoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()

	require.NoError(t, store.AppendStep(ctx, ports.StepRow{SessionID: "s1", Seq: 1, NodeID: "idea:seed"}))

	// Atomic writes leave no temp files behind.
	entries, err := os.ReadDir(filepath.Join(dir, "s1"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "tmp-")
	}
}

func TestStore_ListSessions(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()

	ids, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.CreateProject(ctx, ports.ProjectRow{SessionID: "beta"}))
	require.NoError(t, store.CreateProject(ctx, ports.ProjectRow{SessionID: "alpha"}))

	ids, err = store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.NewStore(t.TempDir()))
}
