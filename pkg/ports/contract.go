package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/pkg/domain"
)

// RunSessionStoreContract verifies that a SessionStore implementation adheres
// to the interface contract. Adapter tests call it with a fresh store.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405")

	t.Run("CreateAndLoadProject", func(t *testing.T) {
		row := ProjectRow{
			SessionID:    sessionID,
			GraphVersion: "1.0",
			Presets:      []string{"photography"},
			CreatedAt:    time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, store.CreateProject(ctx, row))

		loaded, err := store.LoadProject(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, row.GraphVersion, loaded.GraphVersion)
		assert.Equal(t, row.Presets, loaded.Presets)
		assert.True(t, row.CreatedAt.Equal(loaded.CreatedAt))
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		_, err := store.LoadProject(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("StepsAppendInOrder", func(t *testing.T) {
		for seq := 1; seq <= 3; seq++ {
			row := StepRow{
				SessionID: sessionID,
				Seq:       seq,
				NodeID:    domain.EntryNodeID,
				Fields:    map[string]string{"concept": "x"},
				Timestamp: time.Now().UTC(),
			}
			require.NoError(t, store.AppendStep(ctx, row))
		}
		rows, err := store.LoadSteps(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, 1, rows[0].Seq)
		assert.Equal(t, 3, rows[2].Seq)
	})

	t.Run("ExportWritesOnce", func(t *testing.T) {
		row := ExportRow{
			SessionID: sessionID,
			Package:   domain.ExportPackage{SessionID: sessionID, RU: "ру", EN: "en"},
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.WriteExport(ctx, row))
		assert.ErrorIs(t, store.WriteExport(ctx, row), domain.ErrExportExists)

		loaded, err := store.LoadExport(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "ру", loaded.Package.RU)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.LoadProject(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		_, err = store.LoadExport(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		// Deleting again is a no-op, not an error.
		assert.NoError(t, store.Delete(ctx, sessionID))
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.CreateProject(ctx, ProjectRow{SessionID: id1}))
		require.NoError(t, store.CreateProject(ctx, ProjectRow{SessionID: id2}))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.ListSessions(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
