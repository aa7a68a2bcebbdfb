package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// initRepo creates a throwaway git repository with one commit on "main",
// suitable as the base repository a Manager creates worktrees off of.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run(t, dir, "add", "README.md")
	run(t, dir, "commit", "-m", "initial commit")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "worktrees")
	m, err := New(repo, base, logging.Nop())
	require.NoError(t, err)
	return m, repo
}

func TestCreateAddsWorktreeOnNewBranch(t *testing.T) {
	m, _ := newTestManager(t)
	wt, err := m.Create(context.Background(), "task-1", "main")
	require.NoError(t, err)
	assert.Equal(t, core.WorktreeActive, wt.Status)
	assert.Equal(t, "agentkit/task-1", wt.BranchName)
	assert.DirExists(t, wt.Path)
}

func TestCreateTwiceForSameTaskConflicts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Create(ctx, "task-1", "main")
	require.NoError(t, err)

	_, err = m.Create(ctx, "task-1", "main")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatConflict))
}

func TestCreateRejectsUnsafeBaseBranch(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create(context.Background(), "task-1", "main; rm -rf /")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestCommitsOnBranchAndChangedFiles(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	wt, err := m.Create(ctx, "task-2", "main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(wt.Path, "new.txt"), []byte("data\n"), 0o644))
	run(t, wt.Path, "add", "new.txt")
	run(t, wt.Path, "commit", "-m", "add new file")
	_ = repo

	commits, err := m.CommitsOnBranch(ctx, "task-2", "main")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "add new file", commits[0].Subject)

	files, err := m.ChangedFiles(ctx, "task-2", "main")
	require.NoError(t, err)
	assert.Contains(t, files, "new.txt")
}

func TestCleanupRemovesWorktreeAndBranch(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	wt, err := m.Create(ctx, "task-3", "main")
	require.NoError(t, err)

	require.NoError(t, m.Cleanup(ctx, "task-3", false))
	assert.NoDirExists(t, wt.Path)
	_, ok := m.Get("task-3")
	assert.False(t, ok)
}

func TestCleanupIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Cleanup(context.Background(), "never-existed", false))
}

func TestGCReclaimsOnlyIdleTerminalWorktrees(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	wt, err := m.Create(ctx, "task-4", "main")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus("task-4", core.WorktreeCompleted))

	m.mu.Lock()
	m.entries["task-4"].LastActivity = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	stillActive, err := m.Create(ctx, "task-5", "main")
	require.NoError(t, err)

	reclaimed, err := m.GC(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	assert.NoDirExists(t, wt.Path)
	assert.DirExists(t, stillActive.Path)
}

func TestUpdateStatusRejectsAfterTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Create(ctx, "task-6", "main")
	require.NoError(t, err)

	require.NoError(t, m.UpdateStatus("task-6", core.WorktreeFailed))
	err = m.UpdateStatus("task-6", core.WorktreeCompleted)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestReconcileAdoptsUntrackedDirectoryAsOrphaned(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	worktreePath := filepath.Join(m.base, "ghost-task")
	run(t, repo, "worktree", "add", "-b", "agentkit/ghost-task", worktreePath, "main")

	require.NoError(t, m.Reconcile(ctx))

	wt, ok := m.Get("ghost-task")
	require.True(t, ok)
	assert.Equal(t, core.WorktreeOrphaned, wt.Status)
}

func TestListReturnsEverySnapshottedWorktree(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Create(ctx, "task-1", "main")
	require.NoError(t, err)
	_, err = m.Create(ctx, "task-2", "main")
	require.NoError(t, err)

	all := m.List()
	require.Len(t, all, 2)
	ids := []string{all[0].TaskID, all[1].TaskID}
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, ids)
}
