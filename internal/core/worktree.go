package core

import "time"

// WorktreeStatus: active -> one of {completed, failed, orphaned}. Orphaned
// is reached only through reconciliation: the Worktree Manager's startup
// Reconcile, or its directory watch noticing a worktree removed from disk.
type WorktreeStatus string

const (
	WorktreeActive    WorktreeStatus = "active"
	WorktreeCompleted WorktreeStatus = "completed"
	WorktreeFailed    WorktreeStatus = "failed"
	WorktreeOrphaned  WorktreeStatus = "orphaned"
)

func (s WorktreeStatus) Terminal() bool {
	switch s {
	case WorktreeCompleted, WorktreeFailed, WorktreeOrphaned:
		return true
	default:
		return false
	}
}

// Worktree is a per-task checkout rooted under a configured base directory.
// At most one exists per task id at any instant; a task id belongs to at
// most one worktree over its entire lifetime.
type Worktree struct {
	TaskID       string         `json:"task_id"`
	BranchName   string         `json:"branch_name"`
	Path         string         `json:"path"`
	BaseBranch   string         `json:"base_branch"`
	Status       WorktreeStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// IdleFor reports how long the worktree has sat without activity, relative
// to now.
func (w *Worktree) IdleFor(now time.Time) time.Duration {
	return now.Sub(w.LastActivity)
}

// GCEligible reports whether gc(older-than) should sweep this worktree: it
// must be terminal and idle past the threshold. A running task's worktree
// is never eligible, regardless of idle age.
func (w *Worktree) GCEligible(now time.Time, olderThan time.Duration) bool {
	return w.Status.Terminal() && w.IdleFor(now) >= olderThan
}
