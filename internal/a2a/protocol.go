// Package a2a implements the remote agent protocol (spec.md §6.3): a
// JSON-RPC 2.0 envelope over HTTP, plus the plain-JSON agent card and task
// record endpoints that sit alongside it. Grounded on
// kadirpekel-hector/pkg/a2a/protocol.go's AgentCard/Task/TaskState shape,
// adapted from that package's lowercase REST-style states to the
// `TASK_STATE_*` vocabulary spec.md §6.3 requires — kadirpekel-hector's own
// server.go is HTTP+JSON, not JSON-RPC, so the envelope itself is original.
package a2a

import (
	"encoding/json"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
)

// TaskState is the wire vocabulary for a task's status, distinct from
// core.TaskStatus: it adds INPUT_REQUIRED and REJECTED, neither of which the
// Task Router's own state machine has an edge for (approval-pending and
// pre-admission rejection are both internal/session and internal/approval
// concerns, surfaced here rather than modelled as Task Router states).
type TaskState string

const (
	TaskStateSubmitted     TaskState = "TASK_STATE_SUBMITTED"
	TaskStateWorking       TaskState = "TASK_STATE_WORKING"
	TaskStateInputRequired TaskState = "TASK_STATE_INPUT_REQUIRED"
	TaskStateCompleted     TaskState = "TASK_STATE_COMPLETED"
	TaskStateFailed        TaskState = "TASK_STATE_FAILED"
	TaskStateCancelled     TaskState = "TASK_STATE_CANCELLED"
	TaskStateRejected      TaskState = "TASK_STATE_REJECTED"
)

// StateForTask maps a core.Task's status to its wire state. A task with a
// pending approval is reported as input-required rather than working; the
// caller supplies that fact since it lives in the Approval Broker, not the
// Task.
func StateForTask(task *core.Task, awaitingApproval bool) TaskState {
	if awaitingApproval && task.Status == core.TaskRunning {
		return TaskStateInputRequired
	}
	switch task.Status {
	case core.TaskPending:
		return TaskStateSubmitted
	case core.TaskRunning:
		return TaskStateWorking
	case core.TaskCompleted:
		return TaskStateCompleted
	case core.TaskFailed:
		return TaskStateFailed
	case core.TaskCancelled:
		return TaskStateCancelled
	default:
		return TaskStateRejected
	}
}

// AgentCard is served verbatim at /.well-known/agent.json (§6.3) with the
// tool catalogue folded in per §6.4.
type AgentCard struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Capabilities []string            `json:"capabilities"`
	Skills       []AgentSkill        `json:"skills"`
	Tools        []core.ToolDescriptor `json:"tools,omitempty"`
}

// AgentSkill describes one capability the agent advertises, following
// kadirpekel-hector's AgentSkill id/name/description/tags shape.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// MessagePart is one part of an inbound or historical message. Kind "text"
// is the only one the core interprets; other kinds round-trip opaquely as
// protocol extensions (§6.3).
type MessagePart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is the envelope's unit of conversation, matching
// core.ConversationMessage's role+parts shape closely enough to convert
// between them directly.
type Message struct {
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// Text concatenates every "text" part, in order — the prompt the Task
// Router actually dispatches.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == "text" {
			out += p.Text
		}
	}
	return out
}

func messageFromConversation(m core.ConversationMessage) Message {
	out := Message{Role: string(m.Role)}
	for _, p := range m.Parts {
		if p.Kind == core.PartText {
			out.Parts = append(out.Parts, MessagePart{Kind: "text", Text: p.Text})
		}
	}
	return out
}

// TaskStatusRecord is the `status` field of a task record.
type TaskStatusRecord struct {
	State TaskState `json:"state"`
}

// TaskRecord is the result of `message/send` (status only) and the full
// body of `GET /a2a/task/{id}` (status plus history).
type TaskRecord struct {
	ID        string      `json:"id"`
	ContextID string      `json:"context_id"`
	Status    TaskStatusRecord `json:"status"`
	History   []Message   `json:"history,omitempty"`
}

func newTaskRecord(task *core.Task, awaitingApproval bool, history []core.ConversationMessage) TaskRecord {
	rec := TaskRecord{
		ID:        task.ID,
		ContextID: task.ContextID,
		Status:    TaskStatusRecord{State: StateForTask(task, awaitingApproval)},
	}
	for _, m := range history {
		rec.History = append(rec.History, messageFromConversation(m))
	}
	return rec
}

// SendMessageParams is the `params` payload of a `message/send` request.
type SendMessageParams struct {
	Message Message `json:"message"`
}

// --- JSON-RPC 2.0 envelope ---

// RPCRequest is a JSON-RPC 2.0 request envelope. ID may be a string,
// number, or null per the spec; left as json.RawMessage so it round-trips
// unmodified in the response.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope: exactly one of Result or
// Error is populated.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC 2.0 error object. The -32700 and -32600..-32603
// codes are the reserved protocol-level codes (parse error, method not
// found, ...); domain codes start at -32001, just past -32000 in the
// implementation-defined server-error range, one per agentkit error
// condition the envelope can surface (task-not-found, approval-required, ...).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603

	RPCTaskNotFound       = -32001
	RPCApprovalRequired   = -32002
	RPCValidationFailed   = -32003
)

func newErrorResponse(id json.RawMessage, code int, message string) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func newResultResponse(id json.RawMessage, result any) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// healthBody is the body of GET /health.
type healthBody struct {
	Status string `json:"status"`
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
