package core

import (
	"context"
	"time"
)

// WorktreeManager is the port the Task Router and Agent Loop depend on to
// isolate a task in its own git checkout. Implemented by internal/worktree.
type WorktreeManager interface {
	Create(ctx context.Context, taskID, baseBranch string) (*Worktree, error)
	CommitsOnBranch(ctx context.Context, taskID, baseBranch string) ([]CommitInfo, error)
	ChangedFiles(ctx context.Context, taskID, baseBranch string) ([]string, error)
	UpdateStatus(taskID string, status WorktreeStatus) error
	Cleanup(ctx context.Context, taskID string, keepBranch bool) error
	GC(ctx context.Context, olderThan time.Duration) (int, error)
	Get(taskID string) (*Worktree, bool)
}

// ProcessHandle is a reference to a launched external process, opaque to
// callers outside internal/process.
type ProcessHandle interface {
	TaskID() string
	Wait(ctx context.Context) (*ProcessResult, error)
	Cancel() error
	SendInput(data []byte) error
	SendControl(signal ControlSignal) error
}

// ControlSignal models the interactive control characters the Process
// Supervisor can inject into a running process's stdin.
type ControlSignal string

const (
	ControlInterrupt   ControlSignal = "interrupt"   // ctrl-c
	ControlEOF         ControlSignal = "eof"         // ctrl-d
	ControlSuspend     ControlSignal = "suspend"     // ctrl-z
	ControlClearScreen ControlSignal = "clear-screen"
)

// ProcessResult is the terminal outcome of a supervised process.
type ProcessResult struct {
	ExitCode  int
	TimedOut  bool
	Cancelled bool
	Output    []byte
	StartedAt time.Time
	EndedAt   time.Time
}

// LaunchSpec is the input to the Process Supervisor's launch operation.
type LaunchSpec struct {
	TaskID      string
	Executable  string
	Args        []string
	WorkingDir  string
	Env         map[string]string
	Timeout     time.Duration
	Stdin       []byte
	OnProgress  func(chunk []byte, stderr bool)
}

// ProcessSupervisor is the port the Task Router and external-CLI runners
// depend on. Implemented by internal/process.
type ProcessSupervisor interface {
	Launch(ctx context.Context, spec LaunchSpec) (ProcessHandle, error)
	Cancel(taskID string) error
}

// LLMProvider is the consumed external interface (§6.1): a non-restartable
// but cancellable completion stream.
type LLMProvider interface {
	Complete(ctx context.Context, messages []ConversationMessage, tools []ToolDescriptor, opts CompletionOptions) (CompletionStream, error)
}

// CompletionOptions configures a single LLMProvider.Complete call.
type CompletionOptions struct {
	Model              string
	MaxTokens          int
	Temperature        float64
	StopSequences      []string
	SystemPromptOverride string
	Stream             bool
}

// CompletionEventKind tags one event of a CompletionStream.
type CompletionEventKind string

const (
	EventTextDelta CompletionEventKind = "text-delta"
	EventToolCall  CompletionEventKind = "tool-call"
	EventUsage     CompletionEventKind = "usage"
	EventDone      CompletionEventKind = "done"
)

// CompletionEvent is one item yielded by a CompletionStream.
type CompletionEvent struct {
	Kind CompletionEventKind

	TextDelta string

	ToolCallID        string
	ToolCallName      string
	ToolCallArguments map[string]any

	UsageInputTokens  int
	UsageOutputTokens int
}

// CompletionStream is consumed by the Agent Loop; it is non-restartable and
// must be drained or cancelled via ctx.
type CompletionStream interface {
	Next(ctx context.Context) (CompletionEvent, error)
	Close() error
}

// Sentinel errors a CompletionStream.Next may surface via errors.Is,
// matching §6.1's provider error kinds.
var (
	ErrProviderUnavailable = ErrExecution(CodeProviderUnavailable, "llm provider unavailable")
	ErrModelNotFound       = ErrValidation(CodeModelNotFound, "model not found")
)

// NewRateLimitError builds the retry-after-carrying variant of a rate-limit
// failure.
func NewRateLimitError(retryAfterSeconds int) *DomainError {
	return ErrRateLimit("provider rate limited", retryAfterSeconds)
}

// NewContextExceededError builds the context-length-exceeded variant.
func NewContextExceededError(max, requested int) *DomainError {
	return ErrValidation(CodeContextExceeded, "context length exceeded").
		WithDetail("max", max).WithDetail("requested", requested)
}

// ToolHandler executes one tool invocation. Handlers never panic across the
// executor boundary; the executor recovers and converts a panic to an
// error result.
type ToolHandler func(ctx context.Context, invocation *ToolInvocation, workingDir string) (*ToolResult, error)

// ApprovalResolver is the port the Agent Loop and HTTP surface use to
// resolve a pending Approval Request. Implemented by internal/approval.
type ApprovalResolver interface {
	Resolve(requestID string, decision ApprovalDecision, modifiedArgs map[string]any) error
}

// KnowledgeStore is the consumed external interface (§6.2). Failures
// degrade gracefully: an empty result, never a failed task.
type KnowledgeStore interface {
	Ingest(ctx context.Context, document string) error
	Search(ctx context.Context, query string, limit int, filters map[string]string) ([]KnowledgeResult, error)
	ExtractEntities(ctx context.Context, documentID string) ([]string, error)
}

// KnowledgeResult is one ranked hit from a KnowledgeStore search.
type KnowledgeResult struct {
	DocumentID string
	Score      float64
	Snippet    string
}
