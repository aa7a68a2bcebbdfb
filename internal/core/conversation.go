package core

import "time"

// MessageRole is one of the four roles a Conversation Message may carry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// PartKind tags one content part of a message.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolUse    PartKind = "tool-use"
	PartToolResult PartKind = "tool-result"
)

// MessagePart is one unit of a message's ordered content.
type MessagePart struct {
	Kind          PartKind       `json:"kind"`
	Text          string         `json:"text,omitempty"`
	ToolUseID     string         `json:"tool_use_id,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	ToolArguments map[string]any `json:"tool_arguments,omitempty"`
	ToolIsError   bool           `json:"tool_is_error,omitempty"`
	ToolOutput    any            `json:"tool_output,omitempty"`
}

// ConversationMessage lives only in the Agent Loop's in-memory context
// unless explicitly archived as a Decision/Artifact — it is not replayed
// across process restarts.
type ConversationMessage struct {
	Role      MessageRole   `json:"role"`
	Parts     []MessagePart `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`
}

func TextMessage(role MessageRole, text string) ConversationMessage {
	return ConversationMessage{
		Role:      role,
		Parts:     []MessagePart{{Kind: PartText, Text: text}},
		Timestamp: time.Now(),
	}
}

// Text concatenates every text part of the message, in order.
func (m ConversationMessage) Text() string {
	out := ""
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// PendingToolUses returns the tool-use parts not yet matched by a
// tool-result part with the same ToolUseID within the same message.
func (m ConversationMessage) PendingToolUses() []MessagePart {
	resolved := make(map[string]bool)
	for _, p := range m.Parts {
		if p.Kind == PartToolResult {
			resolved[p.ToolUseID] = true
		}
	}
	var pending []MessagePart
	for _, p := range m.Parts {
		if p.Kind == PartToolUse && !resolved[p.ToolUseID] {
			pending = append(pending, p)
		}
	}
	return pending
}
