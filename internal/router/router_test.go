package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
	"github.com/agentkit-run/agentkit/internal/process"
	"github.com/agentkit-run/agentkit/internal/session"
)

type fakeWorktrees struct{ mu sync.Mutex; created []string }

func (f *fakeWorktrees) Create(_ context.Context, taskID, _ string) (*core.Worktree, error) {
	f.mu.Lock()
	f.created = append(f.created, taskID)
	f.mu.Unlock()
	return &core.Worktree{TaskID: taskID, Path: "/tmp/wt-" + taskID}, nil
}
func (f *fakeWorktrees) CommitsOnBranch(context.Context, string, string) ([]core.CommitInfo, error) {
	return nil, nil
}
func (f *fakeWorktrees) ChangedFiles(context.Context, string, string) ([]string, error) { return nil, nil }
func (f *fakeWorktrees) UpdateStatus(string, core.WorktreeStatus) error                  { return nil }
func (f *fakeWorktrees) Cleanup(context.Context, string, bool) error                     { return nil }
func (f *fakeWorktrees) GC(context.Context, time.Duration) (int, error)                  { return 0, nil }
func (f *fakeWorktrees) Get(string) (*core.Worktree, bool)                               { return nil, false }

type fakeSessions struct {
	mu       sync.Mutex
	created  map[string]bool
	finished map[string]core.SessionStatus
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{created: map[string]bool{}, finished: map[string]core.SessionStatus{}}
}
func (f *fakeSessions) Create(sessionID, _ string) (core.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[sessionID] = true
	return core.SessionInfo{SessionID: sessionID}, nil
}
func (f *fakeSessions) Start(string) error { return nil }
func (f *fakeSessions) Finish(sessionID string, status core.SessionStatus, _ *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[sessionID] = status
	return nil
}
func (f *fakeSessions) FinishTimedOut(sessionID string, _ *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[sessionID] = core.SessionFailed
	return nil
}
func (f *fakeSessions) Publish(string, core.OutputKind, []byte) error { return nil }
func (f *fakeSessions) Attach(string, session.ProcessControl) error   { return nil }

type fakeRunner struct {
	mu       sync.Mutex
	active   int
	maxSeen  int
	release  chan struct{}
	result   *core.TaskResult
	err      error
	// sessions, when set, is finished as completed on success, as the real
	// runners finish their own sessions.
	sessions Sessions
}

func newFakeRunner() *fakeRunner { return &fakeRunner{release: make(chan struct{})} }

func (r *fakeRunner) Run(ctx context.Context, task *core.Task, sessionID, workingDir string) (*core.TaskResult, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	if r.sessions != nil {
		code := 0
		_ = r.sessions.Finish(sessionID, core.SessionCompleted, &code)
	}
	return &core.TaskResult{Summary: "done"}, nil
}

func waitForTask(t *testing.T, r *Router, taskID string, terminal core.TaskStatus) *core.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := r.Get(taskID); ok && task.Status == terminal {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach %s in time", taskID, terminal)
	return nil
}

func TestSubmitDispatchesToEmbeddedRunnerAndCompletes(t *testing.T) {
	wt := &fakeWorktrees{}
	sessions := newFakeSessions()
	embedded := newFakeRunner()
	embedded.sessions = sessions
	close(embedded.release)

	r := New(Config{MaxConcurrentTasks: 2}, wt, sessions, embedded, newFakeRunner(), events.New(16), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	task, err := r.Submit(ctx, "write a newsletter summary", core.RunnerEmbedded, "", core.PriorityNormal)
	require.NoError(t, err)

	done := waitForTask(t, r, task.ID, core.TaskCompleted)
	assert.Equal(t, "done", done.Result.Summary)
	assert.True(t, sessions.created[task.ID])
	assert.Equal(t, core.SessionCompleted, sessions.finished[task.ID])
	assert.Contains(t, wt.created, task.ID) // no workspace given, so a worktree is allocated
}

func TestSubmitRejectsInvalidPriority(t *testing.T) {
	r := New(Config{}, &fakeWorktrees{}, newFakeSessions(), newFakeRunner(), newFakeRunner(), events.New(16), logging.Nop())
	_, err := r.Submit(context.Background(), "x", core.RunnerEmbedded, "", core.Priority("urgent"))
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestSubmitAutoClassifiesToExternalCLI(t *testing.T) {
	wt := &fakeWorktrees{}
	sessions := newFakeSessions()
	external := newFakeRunner()
	close(external.release)

	r := New(Config{MaxConcurrentTasks: 2}, wt, sessions, newFakeRunner(), external, events.New(16), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	task, err := r.Submit(ctx, "fix the failing unit test in the api handler", core.RunnerAuto, "", core.PriorityHigh)
	require.NoError(t, err)
	waitForTask(t, r, task.ID, core.TaskCompleted)
	assert.Equal(t, core.RunnerExternalCLI, task.RunnerKind)
}

func TestConcurrencyCapLimitsParallelRunners(t *testing.T) {
	embedded := newFakeRunner()
	r := New(Config{MaxConcurrentTasks: 1}, &fakeWorktrees{}, newFakeSessions(), embedded, newFakeRunner(), events.New(16), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	task1, err := r.Submit(ctx, "first task", core.RunnerEmbedded, "", core.PriorityNormal)
	require.NoError(t, err)
	task2, err := r.Submit(ctx, "second task", core.RunnerEmbedded, "", core.PriorityNormal)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	embedded.mu.Lock()
	seen := embedded.maxSeen
	embedded.mu.Unlock()
	assert.Equal(t, 1, seen)

	close(embedded.release)
	waitForTask(t, r, task1.ID, core.TaskCompleted)
	waitForTask(t, r, task2.ID, core.TaskCompleted)
}

// TestExternalCLITimeoutProducesTimedOutErrorAndDualCloseEvents exercises
// the real Process Supervisor, ExternalCLIRunner, Router.execute and
// session Registry together (no fakes) against a task whose deadline is
// shorter than its process's runtime, proving the timeout is classified
// correctly end to end rather than falling through to a generic runner
// error, and that the session's log closes with exit(non-zero) followed
// by terminated.
func TestExternalCLITimeoutProducesTimedOutErrorAndDualCloseEvents(t *testing.T) {
	supervisor := process.New(logging.Nop())
	sessions := session.New(0, logging.Nop())
	external := &ExternalCLIRunner{
		Supervisor: supervisor,
		Sessions:   sessions,
		Executable: "sleep",
		Args:       []string{"5"},
	}

	r := New(Config{MaxConcurrentTasks: 2}, &fakeWorktrees{}, sessions, newFakeRunner(), external, events.New(16), logging.Nop())

	task := core.NewTask("5", core.RunnerExternalCLI, "/tmp", core.PriorityNormal)
	deadline := time.Now().Add(50 * time.Millisecond)
	task.Deadline = &deadline
	sessionID := task.ID
	task.SessionID = sessionID
	_, err := sessions.Create(sessionID, task.ID)
	require.NoError(t, err)
	r.store(task)

	ch, cancelSub, err := sessions.Subscribe(sessionID)
	require.NoError(t, err)
	defer cancelSub()

	r.execute(task, external, sessionID, "/tmp")

	assert.Equal(t, core.TaskFailed, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "timed-out", task.Result.ErrorCode)

	info, ok := sessions.Info(sessionID)
	require.True(t, ok)
	assert.Equal(t, core.SessionFailed, info.Status)

	var entries []core.SessionOutput
	for entry := range ch {
		entries = append(entries, entry)
	}
	require.GreaterOrEqual(t, len(entries), 2)
	last := entries[len(entries)-1]
	secondToLast := entries[len(entries)-2]
	assert.Equal(t, core.OutputExit, secondToLast.Kind)
	require.NotNil(t, secondToLast.ExitCode)
	assert.NotEqual(t, 0, *secondToLast.ExitCode)
	assert.Equal(t, core.OutputTerminated, last.Kind)
}
