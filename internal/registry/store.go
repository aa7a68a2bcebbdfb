// Package registry implements the crash-recovery snapshot store spec.md
// §6.6 calls for: terminal task metadata, periodically serialised so a
// restarted core can report on work that finished (or was interrupted)
// before the crash. It never holds live session state — that stays in
// internal/session's in-memory registry per §6.6's explicit "not
// persisted" rule for session log buffers.
//
// Grounded on the teacher's internal/adapters/state.SQLiteStateManager for
// the backend shape (a write connection plus a separate read-only
// connection, WAL mode, busy-timeout retry) and its atomic_unix.go /
// atomic_windows.go pair for the JSON-file alternative's crash-safe
// rewrite via renameio.
package registry

import "github.com/agentkit-run/agentkit/internal/core"

// Store persists terminal task records for crash recovery. Recording a
// non-terminal task is a programmer error — only the Recorder calls Record,
// and only after it sees a task's status change into a terminal status.
type Store interface {
	Record(task *core.Task) error
	Snapshot() ([]*core.Task, error)
	Close() error
}
