// Package agentloop implements the Agent Loop (spec.md §4.5): the embedded
// reason/act cycle that drives a task when the runner is the in-process LLM
// rather than an externally spawned coding CLI. Grounded on
// kadirpekel-hector/pkg/reasoning's iterate-prepare/ShouldStop/AfterIteration
// shape, collapsed from that package's pluggable-strategy design (reflection,
// goal tracking, supervisor strategies) to the single fixed reason/act cycle
// spec.md describes — this repository has one strategy, not a registry of
// them.
package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// ToolExecutor is the subset of internal/tool.Executor the loop depends on.
type ToolExecutor interface {
	Execute(ctx context.Context, inv *core.ToolInvocation, workingDir string) (*core.ToolResult, error)
}

// ToolCatalogue is the subset of internal/tool.Catalogue the loop depends
// on: the descriptor list presented to the provider each turn.
type ToolCatalogue interface {
	Descriptors() []core.ToolDescriptor
}

// SessionSink receives the Agent Loop's streamed output, one append per
// chunk, matching the Session Registry's append-only output log
// (core.SessionOutput). A nil sink is valid: the loop just doesn't stream.
type SessionSink interface {
	Publish(sessionID string, kind core.OutputKind, data []byte) error
}

// FinishReason names how a Run call ended.
type FinishReason string

const (
	FinishDone             FinishReason = "done"
	FinishTurnLimit        FinishReason = "turn-limit"
	FinishCancelled        FinishReason = "cancelled"
	FinishToolLoopDetected FinishReason = "tool-loop-detected"
	FinishProviderError    FinishReason = "provider-error"
)

// Options configures one Run call. Run replaces a zero or negative
// MaxIterations/ToolFailureLimit with its default; no other field is
// defaulted.
type Options struct {
	Completion        core.CompletionOptions
	MaxIterations     int // turn limit; 0 means DefaultMaxIterations
	ToolFailureLimit  int // identical-signature failures tolerated before tool-loop-detected (a success of that same call resets its count); 0 means DefaultToolFailureLimit
	MaxContextTokens  int // approximate token budget for the assembled prompt; 0 means unlimited
}

const (
	DefaultMaxIterations    = 50
	DefaultToolFailureLimit = 3
)

// Result is everything a Run call produced.
type Result struct {
	Conversation []core.ConversationMessage
	Finish       FinishReason
	Iterations   int
	InputTokens  int
	OutputTokens int
	Err          *core.DomainError
}

// Loop is the Agent Loop. One Loop instance is reused across tasks; all
// per-run state lives in Run's locals, matching spec.md's "strictly
// sequential within one session" rule without needing per-session Loop
// instances.
type Loop struct {
	provider core.LLMProvider
	tools    ToolCatalogue
	executor ToolExecutor
	sink     SessionSink
	log      *logging.Logger
}

func New(provider core.LLMProvider, tools ToolCatalogue, executor ToolExecutor, sink SessionSink, log *logging.Logger) *Loop {
	return &Loop{provider: provider, tools: tools, executor: executor, sink: sink, log: logging.Or(log)}
}

// Run drives one task's conversation to a terminal finish reason. conversation
// is the initial prefix (system + user messages); Run appends to a copy of
// it and returns the full transcript.
func (l *Loop) Run(ctx context.Context, taskID, sessionID string, conversation []core.ConversationMessage, workingDir string, opts Options) (*Result, error) {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	failureLimit := opts.ToolFailureLimit
	if failureLimit <= 0 {
		failureLimit = DefaultToolFailureLimit
	}

	history := append([]core.ConversationMessage(nil), conversation...)
	result := &Result{Conversation: history}
	failureCounts := make(map[string]int)

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			result.Finish = FinishCancelled
			break
		}
		if iteration >= maxIterations {
			result.Finish = FinishTurnLimit
			break
		}

		prompt := trimToBudget(history, opts.MaxContextTokens)
		stream, err := l.provider.Complete(ctx, prompt, l.tools.Descriptors(), opts.Completion)
		if err != nil {
			result.Finish = FinishProviderError
			result.Err = toDomainError(err)
			break
		}

		assistant, toolCalls, usage, consumeErr := l.consume(ctx, stream, sessionID)
		_ = stream.Close()
		result.InputTokens += usage.inputTokens
		result.OutputTokens += usage.outputTokens

		if consumeErr != nil {
			if errors.Is(consumeErr, context.Canceled) || errors.Is(consumeErr, context.DeadlineExceeded) {
				result.Finish = FinishCancelled
				break
			}
			result.Finish = FinishProviderError
			result.Err = toDomainError(consumeErr)
			break
		}

		history = append(history, assistant)
		result.Iterations = iteration + 1

		if len(toolCalls) == 0 {
			result.Finish = FinishDone
			break
		}

		loopDetected := false
		for _, tc := range toolCalls {
			if ctx.Err() != nil {
				result.Finish = FinishCancelled
				loopDetected = false
				break
			}

			inv := &core.ToolInvocation{
				CorrelationID: tc.ID,
				TaskID:        taskID,
				SessionID:     sessionID,
				ToolName:      tc.Name,
				Arguments:     tc.Arguments,
			}
			toolResult, execErr := l.executor.Execute(ctx, inv, workingDir)
			if execErr != nil {
				return nil, fmt.Errorf("executing tool %s: %w", tc.Name, execErr)
			}

			sig := signature(tc.Name, tc.Arguments)
			if toolResult.IsError {
				failureCounts[sig]++
			} else {
				delete(failureCounts, sig)
			}

			history = append(history, toolResultMessage(tc.ID, toolResult))

			if failureCounts[sig] > failureLimit {
				loopDetected = true
				break
			}
		}

		if ctx.Err() != nil && result.Finish == "" {
			result.Finish = FinishCancelled
			break
		}
		if loopDetected {
			result.Finish = FinishToolLoopDetected
			result.Err = core.ErrExecution(core.CodeToolLoopDetected, "tool call repeated past the failure limit: "+fmt.Sprint(failureLimit))
			break
		}
	}

	result.Conversation = history
	return result, nil
}

type usageTotals struct {
	inputTokens  int
	outputTokens int
}

type pendingToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// consume drains one completion stream to its done event, publishing
// text-delta chunks to the session sink as they arrive and collecting the
// full assistant message plus any pending tool calls.
func (l *Loop) consume(ctx context.Context, stream core.CompletionStream, sessionID string) (core.ConversationMessage, []pendingToolCall, usageTotals, error) {
	var text []byte
	var toolCalls []pendingToolCall
	var usage usageTotals

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return core.ConversationMessage{}, nil, usage, err
		}
		switch ev.Kind {
		case core.EventTextDelta:
			text = append(text, ev.TextDelta...)
			if l.sink != nil {
				if err := l.sink.Publish(sessionID, core.OutputStdout, []byte(ev.TextDelta)); err != nil {
					l.log.With("session_id", sessionID).Warn("session sink publish failed", "error", err)
				}
			}
		case core.EventToolCall:
			toolCalls = append(toolCalls, pendingToolCall{ID: ev.ToolCallID, Name: ev.ToolCallName, Arguments: ev.ToolCallArguments})
		case core.EventUsage:
			usage.inputTokens += ev.UsageInputTokens
			usage.outputTokens += ev.UsageOutputTokens
		case core.EventDone:
			parts := make([]core.MessagePart, 0, 1+len(toolCalls))
			if len(text) > 0 {
				parts = append(parts, core.MessagePart{Kind: core.PartText, Text: string(text)})
			}
			for _, tc := range toolCalls {
				parts = append(parts, core.MessagePart{Kind: core.PartToolUse, ToolUseID: tc.ID, ToolName: tc.Name, ToolArguments: tc.Arguments})
			}
			msg := core.ConversationMessage{Role: core.RoleAssistant, Parts: parts}
			return msg, toolCalls, usage, nil
		}
	}
}

func toolResultMessage(toolUseID string, result *core.ToolResult) core.ConversationMessage {
	var output any = result.Output
	if result.IsError {
		output = result.Error
	}
	return core.ConversationMessage{
		Role: core.RoleTool,
		Parts: []core.MessagePart{{
			Kind:        core.PartToolResult,
			ToolUseID:   toolUseID,
			ToolIsError: result.IsError,
			ToolOutput:  output,
		}},
	}
}

// signature renders a deterministic fingerprint of one tool call so repeated
// identical failing calls can be detected regardless of map iteration order.
func signature(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	canon := make(map[string]any, len(args))
	for _, k := range keys {
		canon[k] = args[k]
	}
	encoded, _ := json.Marshal(canon)
	return name + "|" + string(encoded)
}

func toDomainError(err error) *core.DomainError {
	var de *core.DomainError
	if errors.As(err, &de) {
		return de
	}
	return core.ErrInternal(err.Error())
}

// estimateTokens approximates token count as one token per four bytes of
// rendered text, the common rough-order-of-magnitude heuristic — no tokenizer
// dependency is wired because no example in the pack ships one for this
// purpose.
func estimateTokens(m core.ConversationMessage) int {
	n := 0
	for _, p := range m.Parts {
		n += len(p.Text) + len(p.ToolName)
		if p.ToolArguments != nil {
			encoded, _ := json.Marshal(p.ToolArguments)
			n += len(encoded)
		}
		if p.ToolOutput != nil {
			encoded, _ := json.Marshal(p.ToolOutput)
			n += len(encoded)
		}
	}
	return n/4 + 1
}

// trimToBudget drops the oldest non-system messages until the assembled
// prompt fits maxTokens, matching §4.5 step 1's trimming rule. maxTokens <= 0
// means unlimited.
func trimToBudget(history []core.ConversationMessage, maxTokens int) []core.ConversationMessage {
	if maxTokens <= 0 {
		return history
	}
	kept := append([]core.ConversationMessage(nil), history...)
	total := 0
	for _, m := range kept {
		total += estimateTokens(m)
	}
	for total > maxTokens {
		idx := -1
		for i, m := range kept {
			if m.Role != core.RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		total -= estimateTokens(kept[idx])
		kept = append(kept[:idx], kept[idx+1:]...)
	}
	return kept
}
