package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/a2a"
	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

type fakeRouter struct{ tasks map[string]*core.Task }

func newFakeRouter() *fakeRouter { return &fakeRouter{tasks: make(map[string]*core.Task)} }

func (f *fakeRouter) Submit(_ context.Context, prompt string, kind core.RunnerKind, _ string, _ core.Priority) (*core.Task, error) {
	task := core.NewTask(prompt, kind, "", core.PriorityNormal)
	f.tasks[task.ID] = task
	return task, nil
}
func (f *fakeRouter) Get(taskID string) (*core.Task, bool) { t, ok := f.tasks[taskID]; return t, ok }
func (f *fakeRouter) List() []*core.Task                   { return nil }

type fakeApprovals struct{}

func (fakeApprovals) Pending() []core.ApprovalRequest { return nil }

type fakeSessions struct {
	ch map[string]chan core.SessionOutput
}

func newFakeSessions() *fakeSessions { return &fakeSessions{ch: make(map[string]chan core.SessionOutput)} }

func (f *fakeSessions) Subscribe(sessionID string) (<-chan core.SessionOutput, func(), error) {
	ch, ok := f.ch[sessionID]
	if !ok {
		return nil, nil, core.ErrNotFound("session", sessionID)
	}
	return ch, func() {}, nil
}
func (f *fakeSessions) Info(sessionID string) (core.SessionInfo, bool) {
	_, ok := f.ch[sessionID]
	return core.SessionInfo{SessionID: sessionID}, ok
}

func newTestServer() (*Server, *fakeSessions) {
	a2aSrv := a2a.NewServer(a2a.Config{Name: "agentkit", Version: "0.1.0"}, newFakeRouter(), fakeApprovals{}, nil, logging.Nop())
	sessions := newFakeSessions()
	return NewServer(a2aSrv, sessions, logging.Nop(), WithHeartbeat(10*time.Millisecond)), sessions
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAgentCardRoute(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var card a2a.AgentCard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &card))
	assert.Equal(t, "agentkit", card.Name)
}

func TestStreamRouteReplaysThenStreams(t *testing.T) {
	s, sessions := newTestServer()
	ch := make(chan core.SessionOutput, 4)
	sessions.ch["s1"] = ch
	ch <- core.SessionOutput{Seq: 0, Kind: core.OutputStdout, Data: []byte("hello")}

	req := httptest.NewRequest(http.MethodGet, "/a2a/stream/s1", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Contains(t, rr.Body.String(), "event: stdout")
	assert.Contains(t, rr.Body.String(), "hello")
}

func TestStreamRouteUnknownSession(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/a2a/stream/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
