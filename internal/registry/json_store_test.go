package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
)

func terminalTask(t *testing.T) *core.Task {
	t.Helper()
	task := core.NewTask("summarize the release notes", core.RunnerEmbedded, "", core.PriorityNormal)
	require.NoError(t, task.Transition(core.TaskRunning))
	require.NoError(t, task.Transition(core.TaskCompleted))
	task.Result = &core.TaskResult{Summary: "done"}
	return task
}

func TestJSONStoreRecordAndSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store, err := NewJSONStore(path, 50*time.Millisecond, nil)
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

func TestJSONStoreRejectsNonTerminalTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store, err := NewJSONStore(path, time.Second, nil)
	require.NoError(t, err)
	defer store.Close()

	task := core.NewTask("x", core.RunnerEmbedded, "", core.PriorityNormal)
	err = store.Record(task)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestJSONStorePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store, err := NewJSONStore(path, 10*time.Millisecond, nil)
	require.NoError(t, err)
	task := terminalTask(t)
	require.NoError(t, store.Record(task))
	require.NoError(t, store.Close()) // flushes before returning

	reopened, err := NewJSONStore(path, time.Second, nil)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, task.ID, snap[0].ID)
}
