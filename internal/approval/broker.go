// Package approval implements the Approval Broker (spec.md §4.6 step 3-4):
// policy evaluation for risky tool invocations, suspension pending a human
// decision, and trust accumulation that promotes a repeatedly-approved tool
// to auto-approve.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
)

const defaultApprovalTimeout = 10 * time.Minute

type pendingEntry struct {
	request    *core.ApprovalRequest
	responseCh chan resolution
}

type resolution struct {
	decision     core.ApprovalDecision
	modifiedArgs map[string]any
}

// Broker owns every in-flight Approval Request and the per-tool trust
// counters. Grounded on the teacher's ControlPlane pending-request/
// response-channel pattern (RequestUserInput/ProvideUserInput), retargeted
// from free-text human input to a three-way approve/deny/timeout decision
// plus policy-driven auto-approval.
type Broker struct {
	mu     sync.Mutex
	policy *core.ApprovalPolicy
	trust  map[string]int
	idSeq  int

	pending map[string]*pendingEntry
	log     *logging.Logger
	bus     *events.EventBus
}

func New(policy *core.ApprovalPolicy, bus *events.EventBus, log *logging.Logger) *Broker {
	return &Broker{
		policy:  policy,
		trust:   make(map[string]int),
		pending: make(map[string]*pendingEntry),
		log:     logging.Or(log),
		bus:     bus,
	}
}

func (b *Broker) nextID() string {
	b.idSeq++
	return time.Now().UTC().Format("20060102T150405.000000000") + "-" + itoa(b.idSeq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Evaluate runs the policy against one tool invocation and, if the policy
// auto-approves, returns an already-terminal Approval Request without ever
// suspending. Otherwise it returns a pending request that the caller must
// pass to Await.
func (b *Broker) Evaluate(taskID, correlationID, toolName, actionDescription string, risk core.RiskLevel, timeout time.Duration) *core.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	trustCount := b.trust[toolName]
	decision := b.policy.Evaluate(toolName, risk, actionDescription, trustCount)

	now := time.Now()
	req := &core.ApprovalRequest{
		RequestID:         b.nextID(),
		TaskID:            taskID,
		CorrelationID:     correlationID,
		ToolName:          toolName,
		ActionDescription: actionDescription,
		Risk:              risk,
		CreatedAt:         now,
	}
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	req.Timeout = timeout

	if decision.AutoApprove {
		req.Decision = core.ApprovalApproved
		req.ResolvedAt = &now
		return req
	}

	req.Decision = core.ApprovalPending
	entry := &pendingEntry{request: req, responseCh: make(chan resolution, 1)}
	b.pending[req.RequestID] = entry

	if b.bus != nil {
		b.bus.PublishPriority(events.NewApprovalRequiredEvent(taskID, req))
	}
	b.log.With("task_id", taskID, "tool", toolName, "risk", risk).Info("approval required")
	return req
}

// Suspend always registers a pending request, bypassing policy evaluation
// entirely. Used for a tool whose catalogue descriptor sets
// requires-approval, which spec.md §4.6 treats as forcing a human decision
// independent of the risk-ceiling/auto-approve policy path.
func (b *Broker) Suspend(taskID, correlationID, toolName, actionDescription string, risk core.RiskLevel, timeout time.Duration) *core.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	req := &core.ApprovalRequest{
		RequestID:         b.nextID(),
		TaskID:            taskID,
		CorrelationID:     correlationID,
		ToolName:          toolName,
		ActionDescription: actionDescription,
		Risk:              risk,
		Decision:          core.ApprovalPending,
		CreatedAt:         time.Now(),
		Timeout:           timeout,
	}
	entry := &pendingEntry{request: req, responseCh: make(chan resolution, 1)}
	b.pending[req.RequestID] = entry

	if b.bus != nil {
		b.bus.PublishPriority(events.NewApprovalRequiredEvent(taskID, req))
	}
	b.log.With("task_id", taskID, "tool", toolName, "risk", risk).Info("approval required (forced by tool descriptor)")
	return req
}

// Await blocks until req is resolved, the request's own timeout elapses, or
// ctx is cancelled. A request that was already auto-approved by Evaluate
// returns immediately. The request's own timeout resolves it to timed-out,
// which the caller (Tool Executor) treats as a denial; a ctx cancellation
// resolves it to denied and returns ctx's error.
func (b *Broker) Await(ctx context.Context, req *core.ApprovalRequest) (core.ApprovalDecision, map[string]any, error) {
	if req.Decision != core.ApprovalPending {
		return req.Decision, nil, nil
	}

	b.mu.Lock()
	entry, ok := b.pending[req.RequestID]
	b.mu.Unlock()
	if !ok {
		return core.ApprovalTimedOut, nil, nil
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case res := <-entry.responseCh:
		return res.decision, res.modifiedArgs, nil
	case <-timer.C:
		b.resolveInternal(req.RequestID, core.ApprovalTimedOut, nil)
		return core.ApprovalTimedOut, nil, nil
	case <-ctx.Done():
		b.resolveInternal(req.RequestID, core.ApprovalDenied, nil)
		return core.ApprovalDenied, nil, ctx.Err()
	}
}

// Resolve implements core.ApprovalResolver. Resolving an unknown or already
// terminal request is a no-op per the approval-idempotence invariant.
func (b *Broker) Resolve(requestID string, decision core.ApprovalDecision, modifiedArgs map[string]any) error {
	return b.resolveInternal(requestID, decision, modifiedArgs)
}

func (b *Broker) resolveInternal(requestID string, decision core.ApprovalDecision, modifiedArgs map[string]any) error {
	b.mu.Lock()
	entry, ok := b.pending[requestID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.pending, requestID)

	if entry.request.Decision.Terminal() {
		b.mu.Unlock()
		return nil
	}
	now := time.Now()
	entry.request.Decision = decision
	entry.request.ResolvedAt = &now
	entry.request.ModifiedArguments = modifiedArgs

	if decision == core.ApprovalApproved {
		b.trust[entry.request.ToolName]++
	}
	toolName := entry.request.ToolName
	taskID := entry.request.TaskID
	b.mu.Unlock()

	select {
	case entry.responseCh <- resolution{decision: decision, modifiedArgs: modifiedArgs}:
	default:
	}

	if b.bus != nil {
		b.bus.PublishPriority(events.NewApprovalResolvedEvent(taskID, requestID, decision))
	}
	b.log.With("task_id", taskID, "tool", toolName, "decision", decision).Info("approval resolved")
	return nil
}

// CancelTask resolves every pending request belonging to taskID as denied,
// matching the cancellation propagation rule: a cancelled task never leaves
// an approval hanging.
func (b *Broker) CancelTask(taskID string) {
	b.mu.Lock()
	var ids []string
	for id, entry := range b.pending {
		if entry.request.TaskID == taskID {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		_ = b.resolveInternal(id, core.ApprovalDenied, nil)
	}
}

// ResetTrust clears the trust counter for one tool, or every tool if tool
// is empty.
func (b *Broker) ResetTrust(tool string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tool == "" {
		b.trust = make(map[string]int)
		return
	}
	delete(b.trust, tool)
}

// TrustCount reports the current trust counter for tool, for observability.
func (b *Broker) TrustCount(tool string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trust[tool]
}

// Pending returns a snapshot copy of every currently pending request,
// ordered by creation time (FIFO), matching the per-task resolution-order
// guarantee. The broker's lock is never held across the copy's use by the
// caller.
func (b *Broker) Pending() []core.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.ApprovalRequest, 0, len(b.pending))
	for _, entry := range b.pending {
		out = append(out, *entry.request)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

var _ core.ApprovalResolver = (*Broker)(nil)
