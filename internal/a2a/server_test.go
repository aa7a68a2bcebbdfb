package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

type fakeRouter struct {
	tasks map[string]*core.Task
}

func newFakeRouter() *fakeRouter { return &fakeRouter{tasks: make(map[string]*core.Task)} }

func (f *fakeRouter) Submit(_ context.Context, prompt string, kind core.RunnerKind, _ string, _ core.Priority) (*core.Task, error) {
	task := core.NewTask(prompt, kind, "", core.PriorityNormal)
	f.tasks[task.ID] = task
	return task, nil
}
func (f *fakeRouter) Get(taskID string) (*core.Task, bool) {
	t, ok := f.tasks[taskID]
	return t, ok
}
func (f *fakeRouter) List() []*core.Task {
	out := make([]*core.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

type fakeApprovals struct{ pending []core.ApprovalRequest }

func (f *fakeApprovals) Pending() []core.ApprovalRequest { return f.pending }

type fakeTools struct{}

func (fakeTools) Descriptors() []core.ToolDescriptor {
	return []core.ToolDescriptor{{Name: "read_file", Description: "reads a file", RiskLevel: core.RiskLow}}
}

func newTestServer() (*Server, *fakeRouter) {
	router := newFakeRouter()
	cfg := Config{Name: "agentkit", Version: "0.1.0", Capabilities: []string{"code"}}
	return NewServer(cfg, router, &fakeApprovals{}, fakeTools{}, logging.Nop()), router
}

func TestHandleAgentCardIncludesToolCatalogue(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.HandleAgentCard(rr, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))

	var card AgentCard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &card))
	assert.Equal(t, "agentkit", card.Name)
	require.Len(t, card.Tools, 1)
	assert.Equal(t, "read_file", card.Tools[0].Name)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleMessageSendRoundTrip(t *testing.T) {
	s, router := newTestServer()
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"fix the bug"}]}}}`
	rr := httptest.NewRecorder()
	s.HandleMessage(rr, httptest.NewRequest(http.MethodPost, "/a2a/message", bytes.NewBufferString(body)))

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	resultBytes, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var rec TaskRecord
	require.NoError(t, json.Unmarshal(resultBytes, &rec))
	assert.Equal(t, TaskStateSubmitted, rec.Status.State)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, router.tasks, 1)
}

func TestHandleMessageSendRejectsMissingTextPart(t *testing.T) {
	s, _ := newTestServer()
	body := `{"jsonrpc":"2.0","id":2,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"image","text":"n/a"}]}}}`
	rr := httptest.NewRecorder()
	s.HandleMessage(rr, httptest.NewRequest(http.MethodPost, "/a2a/message", bytes.NewBufferString(body)))

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, RPCValidationFailed, resp.Error.Code)
}

func TestHandleMessageUnknownMethod(t *testing.T) {
	s, _ := newTestServer()
	body := `{"jsonrpc":"2.0","id":3,"method":"message/cancel","params":{}}`
	rr := httptest.NewRecorder()
	s.HandleMessage(rr, httptest.NewRequest(http.MethodPost, "/a2a/message", bytes.NewBufferString(body)))

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, RPCMethodNotFound, resp.Error.Code)
}

func TestHandleGetTaskIncludesHistoryAndSummary(t *testing.T) {
	s, router := newTestServer()
	body := `{"jsonrpc":"2.0","id":4,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"summarize the repo"}]}}}`
	rr := httptest.NewRecorder()
	s.HandleMessage(rr, httptest.NewRequest(http.MethodPost, "/a2a/message", bytes.NewBufferString(body)))

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	resultBytes, _ := json.Marshal(resp.Result)
	var rec TaskRecord
	require.NoError(t, json.Unmarshal(resultBytes, &rec))

	task := router.tasks[rec.ID]
	require.NoError(t, task.Transition(core.TaskRunning))
	task.Result = &core.TaskResult{Summary: "done summarizing"}
	require.NoError(t, task.Transition(core.TaskCompleted))

	getRR := httptest.NewRecorder()
	s.HandleGetTask(getRR, httptest.NewRequest(http.MethodGet, "/a2a/task/"+rec.ID, nil), rec.ID)

	var full TaskRecord
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &full))
	assert.Equal(t, TaskStateCompleted, full.Status.State)
	require.Len(t, full.History, 2)
	assert.Equal(t, "user", full.History[0].Role)
	assert.Equal(t, "assistant", full.History[1].Role)
	assert.Equal(t, "done summarizing", full.History[1].Parts[0].Text)
}

func TestHandleGetTaskUnknownReturns404(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.HandleGetTask(rr, httptest.NewRequest(http.MethodGet, "/a2a/task/nope", nil), "nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
