package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI is a minimal OpenAI-compatible chat-completions streaming
// provider. Grounded on kadirpekel-hector/pkg/llms.OpenAIProvider's overall
// shape (an http.Client plus a bearer-token Authorization header), trimmed
// to this repository's scope: it speaks the widely-compatible
// /chat/completions SSE format rather than the Responses API, since
// local/offline-compatible servers (vLLM, Ollama's OpenAI shim, LM Studio)
// implement that surface, not the Responses one. Uses net/http directly —
// the pack's own provider implementations do the same (via a thin internal
// wrapper) rather than a third-party HTTP SDK, so there is no ecosystem
// library to prefer here.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "openai provider requires an api key")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAI) Complete(ctx context.Context, messages []core.ConversationMessage, tools []core.ToolDescriptor, opts core.CompletionOptions) (core.CompletionStream, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	body := chatRequest{
		Model:     model,
		Messages:  toChatMessages(messages, opts.SystemPromptOverride),
		Tools:     toChatTools(tools),
		MaxTokens: opts.MaxTokens,
		Stop:      opts.StopSequences,
		Stream:    true,
	}
	if opts.Temperature != 0 {
		t := opts.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.ErrInternal("encoding chat request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.ErrInternal("building chat request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, core.ErrExecution(core.CodeProviderUnavailable, "calling llm provider: "+err.Error()).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyHTTPError(resp)
	}

	stream := newEventStream(16)
	go p.produce(ctx, resp, stream)
	return stream, nil
}

func (p *OpenAI) produce(ctx context.Context, resp *http.Response, stream *eventStream) {
	defer resp.Body.Close()
	defer stream.Close()

	pendingNames := make(map[int]string)
	pendingIDs := make(map[int]string)
	pendingArgs := make(map[int]*strings.Builder)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			flushToolCalls(ctx, stream, pendingIDs, pendingNames, pendingArgs)
			stream.emit(ctx, core.CompletionEvent{Kind: core.EventDone})
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			if !stream.emit(ctx, core.CompletionEvent{
				Kind:              core.EventUsage,
				UsageInputTokens:  chunk.Usage.PromptTokens,
				UsageOutputTokens: chunk.Usage.CompletionTokens,
			}) {
				return
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !stream.emit(ctx, core.CompletionEvent{Kind: core.EventTextDelta, TextDelta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.ID != "" {
					pendingIDs[tc.Index] = tc.ID
				}
				if tc.Function.Name != "" {
					pendingNames[tc.Index] = tc.Function.Name
				}
				if _, ok := pendingArgs[tc.Index]; !ok {
					pendingArgs[tc.Index] = &strings.Builder{}
				}
				pendingArgs[tc.Index].WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != "" {
				flushToolCalls(ctx, stream, pendingIDs, pendingNames, pendingArgs)
				if choice.FinishReason != "tool_calls" {
					stream.emit(ctx, core.CompletionEvent{Kind: core.EventDone})
					return
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		stream.fail(core.ErrExecution(core.CodeProviderUnavailable, "reading provider stream: "+err.Error()).WithCause(err))
		return
	}
	stream.emit(ctx, core.CompletionEvent{Kind: core.EventDone})
}

func flushToolCalls(ctx context.Context, stream *eventStream, ids, names map[int]string, args map[int]*strings.Builder) {
	for idx, name := range names {
		var arguments map[string]any
		if b, ok := args[idx]; ok && b.Len() > 0 {
			_ = json.Unmarshal([]byte(b.String()), &arguments)
		}
		stream.emit(ctx, core.CompletionEvent{
			Kind:              core.EventToolCall,
			ToolCallID:        ids[idx],
			ToolCallName:      name,
			ToolCallArguments: arguments,
		})
		delete(names, idx)
		delete(ids, idx)
		delete(args, idx)
	}
}

func toChatMessages(messages []core.ConversationMessage, systemOverride string) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if systemOverride != "" {
		out = append(out, chatMessage{Role: "system", Content: systemOverride})
	}
	for _, m := range messages {
		role := string(m.Role)
		for _, part := range m.Parts {
			switch part.Kind {
			case core.PartText:
				out = append(out, chatMessage{Role: role, Content: part.Text})
			case core.PartToolUse:
				args, _ := json.Marshal(part.ToolArguments)
				out = append(out, chatMessage{
					Role: "assistant",
					ToolCalls: []toolCall{{
						ID:       part.ToolUseID,
						Type:     "function",
						Function: functionCall{Name: part.ToolName, Arguments: string(args)},
					}},
				})
			case core.PartToolResult:
				out = append(out, chatMessage{
					Role:       "tool",
					ToolCallID: part.ToolUseID,
					Content:    fmt.Sprintf("%v", part.ToolOutput),
				})
			}
		}
	}
	return out
}

func toChatTools(tools []core.ToolDescriptor) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		params := map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
		props := map[string]any{}
		for name, prop := range t.InputSchema.Properties {
			props[name] = map[string]any{"type": prop.Type, "description": prop.Description}
		}
		params["properties"] = props
		if len(t.InputSchema.Required) > 0 {
			params["required"] = t.InputSchema.Required
		}
		out = append(out, chatTool{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func classifyHTTPError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			retryAfter, _ = strconv.Atoi(v)
		}
		return core.NewRateLimitError(retryAfter)
	case http.StatusNotFound:
		return core.ErrModelNotFound
	case http.StatusRequestEntityTooLarge:
		return core.NewContextExceededError(0, 0)
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrAuth("llm provider rejected credentials")
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return core.ErrProviderUnavailable
	default:
		return core.ErrExecution(core.CodeProviderUnavailable, fmt.Sprintf("llm provider returned status %d", resp.StatusCode))
	}
}

var _ core.LLMProvider = (*OpenAI)(nil)
