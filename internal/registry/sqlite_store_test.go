package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
)

func TestSQLiteStoreRecordAndSnapshotRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	task := terminalTask(t)
	require.NoError(t, store.Record(task))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, task.ID, snap[0].ID)
	assert.Equal(t, core.TaskCompleted, snap[0].Status)
}

func TestSQLiteStoreUpsertsOnRepeatedRecord(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	task := terminalTask(t)
	require.NoError(t, store.Record(task))

	task.Result.Summary = "updated"
	require.NoError(t, store.Record(task))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "updated", snap[0].Result.Summary)
}

func TestSQLiteStoreRejectsNonTerminalTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	task := core.NewTask("x", core.RunnerEmbedded, "", core.PriorityNormal)
	err = store.Record(task)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}
