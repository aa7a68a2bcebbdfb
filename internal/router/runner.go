package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentkit-run/agentkit/internal/agentloop"
	"github.com/agentkit-run/agentkit/internal/core"
)

// Runner drives one task to completion, however it chooses to: the
// embedded Agent Loop or a spawned external CLI. Both runner kinds share
// this contract so the Task Router's dispatch path is runner-agnostic.
type Runner interface {
	Run(ctx context.Context, task *core.Task, sessionID, workingDir string) (*core.TaskResult, error)
}

// EmbeddedLoopRunner adapts an agentloop.Loop to the Runner contract: the
// in-process reason/act cycle handling the task directly.
type EmbeddedLoopRunner struct {
	Loop     *agentloop.Loop
	Sessions Sessions
}

func (r *EmbeddedLoopRunner) Run(ctx context.Context, task *core.Task, sessionID, workingDir string) (*core.TaskResult, error) {
	if err := r.Sessions.Start(sessionID); err != nil {
		return nil, err
	}
	conversation := []core.ConversationMessage{
		core.TextMessage(core.RoleSystem, "You are an autonomous coding agent operating inside a dedicated git worktree."),
		core.TextMessage(core.RoleUser, task.Prompt),
	}

	result, err := r.Loop.Run(ctx, task.ID, sessionID, conversation, workingDir, agentloop.Options{})
	if err != nil {
		_ = r.Sessions.Finish(sessionID, core.SessionFailed, nil)
		return nil, err
	}

	status, taskResult := embeddedOutcome(result)
	exitCode := 0
	if status == core.SessionFailed {
		exitCode = 1
	}
	_ = r.Sessions.Finish(sessionID, status, &exitCode)
	return taskResult, nil
}

func embeddedOutcome(result *agentloop.Result) (core.SessionStatus, *core.TaskResult) {
	switch result.Finish {
	case agentloop.FinishDone:
		return core.SessionCompleted, &core.TaskResult{Summary: lastAssistantText(result.Conversation)}
	case agentloop.FinishCancelled:
		return core.SessionTerminated, &core.TaskResult{ErrorCode: "cancelled", ErrorMessage: "run was cancelled"}
	default:
		errCode, errMsg := "agent-loop-failed", string(result.Finish)
		if result.Err != nil {
			errCode, errMsg = result.Err.Code, result.Err.Message
		}
		return core.SessionFailed, &core.TaskResult{ErrorCode: errCode, ErrorMessage: errMsg}
	}
}

func lastAssistantText(conversation []core.ConversationMessage) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == core.RoleAssistant {
			if text := conversation[i].Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// ProcessLauncher is the subset of internal/process.Supervisor an external
// CLI runner depends on.
type ProcessLauncher interface {
	Launch(ctx context.Context, spec core.LaunchSpec) (core.ProcessHandle, error)
}

// ExternalCLIRunner drives a task by shelling out to a configured coding
// CLI (claude, codex, gemini, aider, ...) under the Process Supervisor,
// forwarding its combined stdout/stderr into the session's output log.
type ExternalCLIRunner struct {
	Supervisor ProcessLauncher
	Sessions   Sessions
	Executable string
	Args       []string
	// Timeout bounds the external CLI's runtime when the task carries no
	// explicit Deadline. Zero defers to the Process Supervisor's own
	// default.
	Timeout time.Duration
}

func (r *ExternalCLIRunner) Run(ctx context.Context, task *core.Task, sessionID, workingDir string) (*core.TaskResult, error) {
	if err := r.Sessions.Start(sessionID); err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if task.Deadline != nil {
		timeout = time.Until(*task.Deadline)
	}

	spec := core.LaunchSpec{
		TaskID:     task.ID,
		Executable: r.Executable,
		Args:       append(append([]string(nil), r.Args...), task.Prompt),
		WorkingDir: workingDir,
		Timeout:    timeout,
		OnProgress: func(chunk []byte, stderr bool) {
			kind := core.OutputStdout
			if stderr {
				kind = core.OutputStderr
			}
			_ = r.Sessions.Publish(sessionID, kind, chunk)
		},
	}

	handle, err := r.Supervisor.Launch(ctx, spec)
	if err != nil {
		_ = r.Sessions.Finish(sessionID, core.SessionFailed, nil)
		return nil, fmt.Errorf("launching external cli: %w", err)
	}
	_ = r.Sessions.Attach(sessionID, handle)

	res, err := handle.Wait(ctx)
	if err != nil {
		_ = r.Sessions.Finish(sessionID, core.SessionFailed, nil)
		return nil, err
	}

	exitCode := res.ExitCode
	switch {
	case res.TimedOut:
		_ = r.Sessions.FinishTimedOut(sessionID, &exitCode)
		return &core.TaskResult{ErrorCode: "timed-out", ErrorMessage: "external cli exceeded its timeout"}, nil
	case res.Cancelled:
		_ = r.Sessions.Finish(sessionID, core.SessionTerminated, &exitCode)
		return &core.TaskResult{ErrorCode: "cancelled", ErrorMessage: "external cli was cancelled"}, nil
	case res.ExitCode != 0:
		_ = r.Sessions.Finish(sessionID, core.SessionFailed, &exitCode)
		return &core.TaskResult{ErrorCode: "exit-nonzero", ErrorMessage: fmt.Sprintf("external cli exited %d", res.ExitCode)}, nil
	default:
		_ = r.Sessions.Finish(sessionID, core.SessionCompleted, &exitCode)
		return &core.TaskResult{Summary: summarizeOutput(res.Output)}, nil
	}
}

// summarizeOutput keeps the task result small; the full transcript stays
// in the session's output log.
func summarizeOutput(output []byte) string {
	const maxLen = 2000
	s := strings.TrimSpace(string(output))
	if len(s) > maxLen {
		return s[len(s)-maxLen:]
	}
	return s
}

var (
	_ Runner = (*EmbeddedLoopRunner)(nil)
	_ Runner = (*ExternalCLIRunner)(nil)
)
