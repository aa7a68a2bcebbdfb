package events

import "github.com/agentkit-run/agentkit/internal/core"

const (
	TypeTaskSubmitted    = "task_submitted"
	TypeTaskStatusChange = "task_status_changed"
	TypeWorktreeCreated  = "worktree_created"
	TypeWorktreeCleaned  = "worktree_cleaned"
	TypeApprovalRequired = "approval_required"
	TypeApprovalResolved = "approval_resolved"
	TypeToolInvoked      = "tool_invoked"
)

// TaskSubmittedEvent is emitted once per submit(), carrying the classifier
// scores per spec.md §4.1's observability requirement.
type TaskSubmittedEvent struct {
	BaseEvent
	ChosenRunner      core.RunnerKind `json:"chosen_runner"`
	ClassifierScores  map[string]float64 `json:"classifier_scores,omitempty"`
}

func NewTaskSubmittedEvent(taskID string, runner core.RunnerKind, scores map[string]float64) TaskSubmittedEvent {
	return TaskSubmittedEvent{BaseEvent: NewBaseEvent(TypeTaskSubmitted, taskID), ChosenRunner: runner, ClassifierScores: scores}
}

// TaskStatusChangedEvent is emitted on every Task.Transition call.
type TaskStatusChangedEvent struct {
	BaseEvent
	From core.TaskStatus `json:"from"`
	To   core.TaskStatus `json:"to"`
}

func NewTaskStatusChangedEvent(taskID string, from, to core.TaskStatus) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{BaseEvent: NewBaseEvent(TypeTaskStatusChange, taskID), From: from, To: to}
}

// WorktreeCreatedEvent / WorktreeCleanedEvent mirror the Worktree Manager's
// lifecycle for subscribers that only care about on-disk state.
type WorktreeCreatedEvent struct {
	BaseEvent
	Path       string `json:"path"`
	BranchName string `json:"branch_name"`
}

func NewWorktreeCreatedEvent(taskID, path, branch string) WorktreeCreatedEvent {
	return WorktreeCreatedEvent{BaseEvent: NewBaseEvent(TypeWorktreeCreated, taskID), Path: path, BranchName: branch}
}

type WorktreeCleanedEvent struct {
	BaseEvent
	KeptBranch bool `json:"kept_branch"`
}

func NewWorktreeCleanedEvent(taskID string, keptBranch bool) WorktreeCleanedEvent {
	return WorktreeCleanedEvent{BaseEvent: NewBaseEvent(TypeWorktreeCleaned, taskID), KeptBranch: keptBranch}
}

// ApprovalRequiredEvent / ApprovalResolvedEvent let a UI or CLI watch the
// human-in-the-loop queue without polling the broker.
type ApprovalRequiredEvent struct {
	BaseEvent
	RequestID string        `json:"request_id"`
	ToolName  string        `json:"tool_name"`
	Risk      core.RiskLevel `json:"risk"`
}

func NewApprovalRequiredEvent(taskID string, req *core.ApprovalRequest) ApprovalRequiredEvent {
	return ApprovalRequiredEvent{
		BaseEvent: NewBaseEvent(TypeApprovalRequired, taskID),
		RequestID: req.RequestID,
		ToolName:  req.ToolName,
		Risk:      req.Risk,
	}
}

type ApprovalResolvedEvent struct {
	BaseEvent
	RequestID string               `json:"request_id"`
	Decision  core.ApprovalDecision `json:"decision"`
}

func NewApprovalResolvedEvent(taskID, requestID string, decision core.ApprovalDecision) ApprovalResolvedEvent {
	return ApprovalResolvedEvent{BaseEvent: NewBaseEvent(TypeApprovalResolved, taskID), RequestID: requestID, Decision: decision}
}

// ToolInvokedEvent is emitted once a tool invocation reaches a terminal
// disposition, for trust/audit observability.
type ToolInvokedEvent struct {
	BaseEvent
	ToolName    string                    `json:"tool_name"`
	Disposition core.InvocationDisposition `json:"disposition"`
}

func NewToolInvokedEvent(taskID, toolName string, disposition core.InvocationDisposition) ToolInvokedEvent {
	return ToolInvokedEvent{BaseEvent: NewBaseEvent(TypeToolInvoked, taskID), ToolName: toolName, Disposition: disposition}
}
