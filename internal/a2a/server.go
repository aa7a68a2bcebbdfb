package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// Router is the subset of internal/router.Router the protocol depends on.
type Router interface {
	Submit(ctx context.Context, prompt string, kind core.RunnerKind, workspace string, priority core.Priority) (*core.Task, error)
	Get(taskID string) (*core.Task, bool)
	List() []*core.Task
}

// Approvals is the subset of internal/approval.Broker needed to report a
// task as input-required rather than working.
type Approvals interface {
	Pending() []core.ApprovalRequest
}

// Tools is the subset of internal/tool.Catalogue the agent card's tool
// listing (§6.4) depends on.
type Tools interface {
	Descriptors() []core.ToolDescriptor
}

// Config names the static identity fields of the agent card.
type Config struct {
	Name         string
	Version      string
	Capabilities []string
	Skills       []AgentSkill
}

// Server implements the HTTP surface of the remote agent protocol: the
// agent card, health, JSON-RPC message/send, and the task record lookup.
// Grounded on the teacher's internal/api.Server for the handler/response
// shape, with the JSON-RPC envelope itself original (see protocol.go).
type Server struct {
	cfg       Config
	router    Router
	approvals Approvals
	tools     Tools
	log       *logging.Logger

	mu      sync.Mutex
	history map[string][]Message // task id -> sent messages, oldest first
}

func NewServer(cfg Config, router Router, approvals Approvals, tools Tools, log *logging.Logger) *Server {
	return &Server{
		cfg:       cfg,
		router:    router,
		approvals: approvals,
		tools:     tools,
		log:       logging.Or(log).WithComponent("a2a"),
		history:   make(map[string][]Message),
	}
}

// AgentCard builds the current agent card, folding in the live tool
// catalogue per §6.4.
func (s *Server) AgentCard() AgentCard {
	card := AgentCard{
		Name:         s.cfg.Name,
		Version:      s.cfg.Version,
		Capabilities: s.cfg.Capabilities,
		Skills:       s.cfg.Skills,
	}
	if s.tools != nil {
		card.Tools = s.tools.Descriptors()
	}
	return card
}

// HandleAgentCard serves GET /.well-known/agent.json.
func (s *Server) HandleAgentCard(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.AgentCard())
}

// HandleHealth serves GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthBody{Status: "ok"})
}

// HandleMessage serves POST /a2a/message: a JSON-RPC 2.0 envelope whose
// only supported method is message/send.
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, newErrorResponse(nil, RPCParseError, "invalid JSON: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		respondJSON(w, http.StatusOK, newErrorResponse(req.ID, RPCInvalidRequest, "jsonrpc must be \"2.0\""))
		return
	}

	switch req.Method {
	case "message/send":
		s.handleMessageSend(w, req)
	default:
		respondJSON(w, http.StatusOK, newErrorResponse(req.ID, RPCMethodNotFound, "unknown method: "+req.Method))
	}
}

func (s *Server) handleMessageSend(w http.ResponseWriter, req RPCRequest) {
	var params SendMessageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		respondJSON(w, http.StatusOK, newErrorResponse(req.ID, RPCInvalidParams, "invalid params: "+err.Error()))
		return
	}
	hasText := false
	for _, p := range params.Message.Parts {
		if p.Kind == "text" {
			hasText = true
			break
		}
	}
	if !hasText {
		respondJSON(w, http.StatusOK, newErrorResponse(req.ID, RPCValidationFailed, "message must carry at least one \"text\" part"))
		return
	}

	task, err := s.router.Submit(context.Background(), params.Message.Text(), core.RunnerAuto, "", core.PriorityNormal)
	if err != nil {
		respondJSON(w, http.StatusOK, newErrorResponse(req.ID, RPCValidationFailed, err.Error()))
		return
	}

	s.mu.Lock()
	s.history[task.ID] = append(s.history[task.ID], params.Message)
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, newResultResponse(req.ID, newTaskRecord(task, false, nil)))
}

// HandleGetTask serves GET /a2a/task/{id}: the full task record including
// history, not JSON-RPC wrapped (§6.3).
func (s *Server) HandleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, ok := s.router.Get(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "task not found: "+taskID)
		return
	}

	awaiting := false
	if s.approvals != nil {
		for _, req := range s.approvals.Pending() {
			if req.TaskID == taskID {
				awaiting = true
				break
			}
		}
	}

	s.mu.Lock()
	sent := append([]Message(nil), s.history[taskID]...)
	s.mu.Unlock()

	rec := newTaskRecord(task, awaiting, nil)
	rec.History = sent
	if task.Status.Terminal() && task.Result != nil && task.Result.Summary != "" {
		rec.History = append(rec.History, Message{Role: "assistant", Parts: []MessagePart{{Kind: "text", Text: task.Result.Summary}}})
	}
	respondJSON(w, http.StatusOK, rec)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
