package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

var branchSafe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]{0,199}$`)

// Manager implements core.WorktreeManager: one worktree per task, branch
// named agentkit/<task-id>, rooted under a configured base directory. It
// owns an fsnotify watch on that directory so a worktree removed out from
// under it (manual `git worktree remove`, a crashed cleanup) is noticed
// without a poll loop, mirroring the teacher's TaskWorktreeManager but
// trading its merge/rebase/stash surface for a notify-driven reconciler.
type Manager struct {
	mu       sync.RWMutex
	git      *gitClient
	base     string
	entries  map[string]*core.Worktree // taskID -> worktree
	log      *logging.Logger
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Manager rooted at repoPath (the base git repository) with
// worktrees created under baseDir. baseDir is created if missing.
func New(repoPath, baseDir string, log *logging.Logger) (*Manager, error) {
	git, err := newGitClient(repoPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating worktree base dir: %w", err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		git:     git,
		base:    absBase,
		entries: make(map[string]*core.Worktree),
		log:     logging.Or(log),
		stopCh:  make(chan struct{}),
	}
	return m, nil
}

func branchFor(taskID string) string {
	return "agentkit/" + taskID
}

func (m *Manager) pathFor(taskID string) string {
	return filepath.Join(m.base, taskID)
}

// Reconcile is run once at startup: it lists every worktree git actually
// knows about, marks as orphaned any non-terminal registry entry whose path
// git no longer lists, and adopts as orphaned any directory under base that
// git lists as a worktree but the registry does not track (a worktree left
// behind by a crash between add and registry-persist). Directories under
// base that git does not list are ignored.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	known, err := m.git.listWorktrees(ctx)
	if err != nil {
		return err
	}
	knownPaths := make(map[string]porcelainWorktree, len(known))
	for _, w := range known {
		knownPaths[resolvePath(w.Path)] = w
	}

	for taskID, wt := range m.entries {
		if pw, ok := knownPaths[resolvePath(wt.Path)]; ok {
			wt.BranchName = pw.Branch
			continue
		}
		if !wt.Status.Terminal() {
			wt.Status = core.WorktreeOrphaned
			wt.LastActivity = time.Now()
			m.log.With("task_id", taskID).Warn("worktree directory missing from git, marking orphaned")
		}
	}

	dirEntries, err := os.ReadDir(m.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading worktree base dir: %w", err)
	}
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		taskID := de.Name()
		if _, tracked := m.entries[taskID]; tracked {
			continue
		}
		path := filepath.Join(m.base, taskID)
		if _, ok := knownPaths[resolvePath(path)]; !ok {
			continue // not a git worktree at all, ignore
		}
		m.entries[taskID] = &core.Worktree{
			TaskID:       taskID,
			BranchName:   branchFor(taskID),
			Path:         path,
			Status:       core.WorktreeOrphaned,
			CreatedAt:    time.Now(),
			LastActivity: time.Now(),
		}
		m.log.With("task_id", taskID).Warn("adopted unregistered worktree as orphaned")
	}
	return nil
}

// Watch starts an fsnotify watch on the base directory; a Remove event for
// an entry the registry still considers active is reconciled to orphaned
// so GC can reclaim the branch even if Cleanup was never called.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting worktree watcher: %w", err)
	}
	if err := w.Add(m.base); err != nil {
		w.Close()
		return fmt.Errorf("watching worktree base dir: %w", err)
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					m.handleRemoved(ev.Name)
				}
			case <-w.Errors:
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (m *Manager) handleRemoved(path string) {
	taskID := filepath.Base(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	wt, ok := m.entries[taskID]
	if !ok || wt.Status.Terminal() {
		return
	}
	wt.Status = core.WorktreeOrphaned
	wt.LastActivity = time.Now()
	m.log.With("task_id", taskID).Warn("worktree directory removed externally, marking orphaned")
}

func (m *Manager) StopWatch() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

// Create implements core.WorktreeManager. It allows one worktree per
// taskID: a second Create for the same task with an existing active
// worktree returns CodeWorktreeExists rather than silently recreating.
func (m *Manager) Create(ctx context.Context, taskID, baseBranch string) (*core.Worktree, error) {
	if !branchSafe.MatchString(baseBranch) {
		return nil, core.ErrValidation(core.CodeInvalidWorkspace, "base branch name contains unsafe characters")
	}

	m.mu.Lock()
	if existing, ok := m.entries[taskID]; ok {
		m.mu.Unlock()
		if !existing.Status.Terminal() {
			return nil, core.ErrConflict(core.CodeWorktreeExists, "worktree already exists for task "+taskID)
		}
		return nil, core.ErrConflict(core.CodeWorktreeConflict, "task "+taskID+" already has a terminal worktree; cleanup before recreating")
	}
	path := m.pathFor(taskID)
	branch := branchFor(taskID)
	placeholder := &core.Worktree{TaskID: taskID, BranchName: branch, Path: path, BaseBranch: baseBranch, Status: core.WorktreeActive}
	m.entries[taskID] = placeholder // reserve the slot before releasing the lock
	m.mu.Unlock()

	if err := m.git.addWorktree(ctx, path, branch, baseBranch); err != nil {
		m.mu.Lock()
		delete(m.entries, taskID)
		m.mu.Unlock()
		if strings.Contains(err.Error(), "already exists") {
			return nil, core.ErrConflict(core.CodeWorktreeConflict, "git worktree path already in use").WithCause(err)
		}
		return nil, err
	}

	now := time.Now()
	m.mu.Lock()
	placeholder.CreatedAt = now
	placeholder.LastActivity = now
	m.mu.Unlock()

	m.log.With("task_id", taskID, "branch", branch).Info("worktree created")
	return placeholder, nil
}

func (m *Manager) CommitsOnBranch(ctx context.Context, taskID, baseBranch string) ([]core.CommitInfo, error) {
	wt, ok := m.Get(taskID)
	if !ok {
		return nil, core.ErrNotFound("worktree", taskID)
	}
	return m.git.commitsBetween(ctx, baseBranch, wt.BranchName)
}

func (m *Manager) ChangedFiles(ctx context.Context, taskID, baseBranch string) ([]string, error) {
	wt, ok := m.Get(taskID)
	if !ok {
		return nil, core.ErrNotFound("worktree", taskID)
	}
	return m.git.changedFiles(ctx, baseBranch, wt.BranchName)
}

func (m *Manager) UpdateStatus(taskID string, status core.WorktreeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wt, ok := m.entries[taskID]
	if !ok {
		return core.ErrNotFound("worktree", taskID)
	}
	if wt.Status.Terminal() {
		return core.ErrState(core.CodeWorktreeConflict, "worktree for task "+taskID+" already in terminal status "+string(wt.Status))
	}
	wt.Status = status
	wt.LastActivity = time.Now()
	return nil
}

// Cleanup removes the worktree's working directory unconditionally and the
// branch unless keepBranch is set. It is idempotent: cleaning up a task
// with no registered worktree is a no-op, matching the spec's
// crash-recovery-safe semantics.
func (m *Manager) Cleanup(ctx context.Context, taskID string, keepBranch bool) error {
	m.mu.Lock()
	wt, ok := m.entries[taskID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := m.git.removeWorktree(ctx, wt.Path, true); err != nil {
		if !strings.Contains(err.Error(), "is not a working tree") {
			return err
		}
	}
	_ = os.RemoveAll(wt.Path)

	if !keepBranch {
		if err := m.git.deleteBranch(ctx, wt.BranchName, true); err != nil {
			m.log.With("task_id", taskID, "branch", wt.BranchName).Warn("branch delete failed during cleanup", "error", err)
		}
	}

	m.mu.Lock()
	delete(m.entries, taskID)
	m.mu.Unlock()

	m.log.With("task_id", taskID).Info("worktree cleaned up", "kept_branch", keepBranch)
	return nil
}

// GC sweeps every terminal worktree idle past olderThan, cleaning it up
// (discarding its branch) and returns the count reclaimed.
func (m *Manager) GC(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now()
	m.mu.RLock()
	var candidates []string
	for taskID, wt := range m.entries {
		if wt.GCEligible(now, olderThan) {
			candidates = append(candidates, taskID)
		}
	}
	m.mu.RUnlock()

	reclaimed := 0
	for _, taskID := range candidates {
		if err := m.Cleanup(ctx, taskID, false); err != nil {
			m.log.With("task_id", taskID).Error("gc cleanup failed", "error", err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (m *Manager) Get(taskID string) (*core.Worktree, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wt, ok := m.entries[taskID]
	if !ok {
		return nil, false
	}
	cp := *wt
	return &cp, true
}

// List returns a snapshot of every known worktree, for CLI inspection
// (`agentkitd worktree list`) rather than any core component's own use.
func (m *Manager) List() []*core.Worktree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Worktree, 0, len(m.entries))
	for _, wt := range m.entries {
		cp := *wt
		out = append(out, &cp)
	}
	return out
}

var _ core.WorktreeManager = (*Manager)(nil)
