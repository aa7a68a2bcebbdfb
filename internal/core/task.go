package core

import (
	"time"

	"github.com/google/uuid"
)

// RunnerKind selects what executes a task: the embedded Agent Loop or an
// externally spawned coding CLI. Auto defers the choice to the Task Router's
// classifier.
type RunnerKind string

const (
	RunnerEmbedded    RunnerKind = "embedded"
	RunnerExternalCLI RunnerKind = "external-cli"
	RunnerAuto        RunnerKind = "auto"
)

func (k RunnerKind) Valid() bool {
	switch k {
	case RunnerEmbedded, RunnerExternalCLI, RunnerAuto:
		return true
	default:
		return false
	}
}

// Priority orders pending tasks FIFO-within-priority, highest first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// Weight gives a numeric ordering for priority queues; higher runs first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// TaskStatus is a DAG: pending -> running -> one of the terminal states.
// Terminal states are sinks; a Task is never mutated after reaching one.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// validTaskTransitions enumerates the only forward edges the state machine
// permits; anything else is an internal invariant violation.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {TaskRunning: true, TaskFailed: true, TaskCancelled: true},
	TaskRunning: {TaskCompleted: true, TaskFailed: true, TaskCancelled: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to TaskStatus) bool {
	edges, ok := validTaskTransitions[from]
	return ok && edges[to]
}

// TaskResult is the handle left behind once a task reaches a terminal state.
type TaskResult struct {
	Summary      string         `json:"summary,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Commits      []CommitInfo   `json:"commits,omitempty"`
	ChangedPaths []string       `json:"changed_paths,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Task is the unit of work accepted by the Task Router. Once terminal it is
// never mutated again; ownership of live mutation belongs to the runner that
// was dispatched for it.
type Task struct {
	ID          string     `json:"id"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Prompt      string     `json:"prompt"`
	RunnerKind  RunnerKind `json:"runner_kind"`
	Workspace   string     `json:"workspace,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	TerminalAt  *time.Time `json:"terminal_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	ContextID   string     `json:"context_id"`
	SessionID   string     `json:"session_id,omitempty"`
	WorktreeID  string     `json:"worktree_id,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`

	// Retained for observability only; never gates execution.
	CostUSD    float64 `json:"cost_usd,omitempty"`
	TokensIn   int     `json:"tokens_in,omitempty"`
	TokensOut  int     `json:"tokens_out,omitempty"`
}

// NewTask allocates a task in the pending state. The context id groups a
// task with its conversation for the remote agent protocol.
func NewTask(prompt string, kind RunnerKind, workspace string, priority Priority) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.NewString(),
		SubmittedAt: now,
		Prompt:      prompt,
		RunnerKind:  kind,
		Workspace:   workspace,
		Priority:    priority,
		Status:      TaskPending,
		ContextID:   uuid.NewString(),
	}
}

// Transition moves the task to `to`, returning an internal DomainError if
// the edge is not legal. Callers must hold whatever lock protects the Task's
// owner (the Task Router / session runner).
func (t *Task) Transition(to TaskStatus) error {
	if t.Status.Terminal() {
		return ErrState("TASK_ALREADY_TERMINAL", "task "+t.ID+" is already terminal at "+string(t.Status))
	}
	if !CanTransition(t.Status, to) {
		return ErrState("INVALID_TRANSITION", "cannot move task "+t.ID+" from "+string(t.Status)+" to "+string(to))
	}
	t.Status = to
	if to.Terminal() {
		now := time.Now()
		t.TerminalAt = &now
	}
	return nil
}

// CommitInfo summarises one commit reachable from a worktree branch tip.
type CommitInfo struct {
	SHA       string    `json:"sha"`
	Subject   string    `json:"subject"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}
