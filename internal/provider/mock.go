package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentkit-run/agentkit/internal/core"
)

// ToolCallSpec is one scripted tool-call event a Turn emits.
type ToolCallSpec struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Turn scripts one Complete call's worth of output. Text is split into a
// handful of text-delta chunks so tests can observe incremental streaming;
// ToolCalls are emitted after the text, each as its own tool-call event. If
// Err is set, Complete fails outright with it instead of returning a stream.
type Turn struct {
	Text        string
	ToolCalls   []ToolCallSpec
	InputTokens int
	OutputTokens int
	Err         error
}

// Mock is a deterministic, in-process core.LLMProvider used by
// internal/agentloop's tests and by the CLI's offline demo mode. Grounded on
// kadirpekel-hector/pkg/llms.StreamChunk's text/tool_call/done event
// vocabulary, scripted instead of backed by a real model.
type Mock struct {
	mu     sync.Mutex
	turns  []Turn
	calls  int
	Model  string
}

func NewMock() *Mock {
	return &Mock{Model: "mock-1"}
}

// Enqueue appends turns to be returned in order, one per Complete call.
// Once the queue is exhausted, Complete falls back to an echo-and-stop turn.
func (m *Mock) Enqueue(turns ...Turn) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	return m
}

// Calls reports how many times Complete has been invoked, for test
// assertions about tool-loop bounds.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) Complete(ctx context.Context, messages []core.ConversationMessage, tools []core.ToolDescriptor, opts core.CompletionOptions) (core.CompletionStream, error) {
	m.mu.Lock()
	m.calls++
	var turn Turn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	} else {
		turn = m.defaultTurn(messages)
	}
	m.mu.Unlock()

	if turn.Err != nil {
		return nil, turn.Err
	}

	stream := newEventStream(8)
	go m.produce(ctx, stream, turn)
	return stream, nil
}

func (m *Mock) defaultTurn(messages []core.ConversationMessage) Turn {
	return Turn{
		Text:         fmt.Sprintf("mock provider received %d messages", len(messages)),
		OutputTokens: 8,
	}
}

func (m *Mock) produce(ctx context.Context, stream *eventStream, turn Turn) {
	defer stream.Close()

	for _, chunk := range chunkText(turn.Text, 24) {
		if !stream.emit(ctx, core.CompletionEvent{Kind: core.EventTextDelta, TextDelta: chunk}) {
			return
		}
	}
	for _, tc := range turn.ToolCalls {
		ev := core.CompletionEvent{
			Kind:              core.EventToolCall,
			ToolCallID:        tc.ID,
			ToolCallName:      tc.Name,
			ToolCallArguments: tc.Arguments,
		}
		if !stream.emit(ctx, ev) {
			return
		}
	}
	if turn.InputTokens > 0 || turn.OutputTokens > 0 {
		usage := core.CompletionEvent{Kind: core.EventUsage, UsageInputTokens: turn.InputTokens, UsageOutputTokens: turn.OutputTokens}
		if !stream.emit(ctx, usage) {
			return
		}
	}
	stream.emit(ctx, core.CompletionEvent{Kind: core.EventDone})
}

// chunkText splits s into runs of at most size runes. An empty s yields no
// chunks, so a no-text turn emits no text-delta events.
func chunkText(s string, size int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

var _ core.LLMProvider = (*Mock)(nil)
