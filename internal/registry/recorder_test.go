package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
)

type fakeFetcher struct {
	tasks map[string]*core.Task
}

func (f *fakeFetcher) Get(taskID string) (*core.Task, bool) {
	t, ok := f.tasks[taskID]
	return t, ok
}

func TestRecorderPersistsOnTerminalTransition(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "registry.json"), time.Hour, logging.Nop())
	require.NoError(t, err)
	defer store.Close()

	task := &core.Task{ID: "task-1", Status: core.TaskCompleted}
	fetcher := &fakeFetcher{tasks: map[string]*core.Task{"task-1": task}}
	bus := events.New(10)

	rec := NewRecorder(store, fetcher, bus, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	bus.PublishPriority(events.NewTaskStatusChangedEvent("task-1", core.TaskRunning, core.TaskCompleted))

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot()
		return err == nil && len(snap) == 1
	}, time.Second, 10*time.Millisecond)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "task-1", snap[0].ID)
}

func TestRecorderIgnoresNonTerminalTransitions(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "registry.json"), time.Hour, logging.Nop())
	require.NoError(t, err)
	defer store.Close()

	task := &core.Task{ID: "task-2", Status: core.TaskRunning}
	fetcher := &fakeFetcher{tasks: map[string]*core.Task{"task-2": task}}
	bus := events.New(10)

	rec := NewRecorder(store, fetcher, bus, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	bus.PublishPriority(events.NewTaskStatusChangedEvent("task-2", core.TaskPending, core.TaskRunning))
	time.Sleep(50 * time.Millisecond)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}
