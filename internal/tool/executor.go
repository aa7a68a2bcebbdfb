package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// ApprovalBroker is the subset of internal/approval.Broker the executor
// depends on, kept as a local interface so this package names its
// dependency by shape rather than importing the concrete broker type.
type ApprovalBroker interface {
	Evaluate(taskID, correlationID, toolName, actionDescription string, risk core.RiskLevel, timeout time.Duration) *core.ApprovalRequest
	Suspend(taskID, correlationID, toolName, actionDescription string, risk core.RiskLevel, timeout time.Duration) *core.ApprovalRequest
	Await(ctx context.Context, req *core.ApprovalRequest) (core.ApprovalDecision, map[string]any, error)
}

// Executor is the Tool Executor (spec.md §4.6): validates an invocation's
// arguments against the catalogue's declared schema, consults the Approval
// Broker, dispatches to the registered handler, and converts a handler
// panic into an error result rather than crashing the task.
type Executor struct {
	catalogue *Catalogue
	approvals ApprovalBroker
	bus       *events.EventBus
	log       *logging.Logger
}

func NewExecutor(catalogue *Catalogue, approvals ApprovalBroker, bus *events.EventBus, log *logging.Logger) *Executor {
	return &Executor{catalogue: catalogue, approvals: approvals, bus: bus, log: logging.Or(log)}
}

// Execute runs one invocation to a terminal disposition. It never returns
// an error for a denied or failed tool — that outcome is carried in the
// returned ToolResult and invocation.Disposition so the Agent Loop can fold
// it back into the conversation as an error tool-result, per spec.md's
// policy-denial handling rule. Execute's error return is reserved for
// programming errors (nil invocation, executor misuse).
func (e *Executor) Execute(ctx context.Context, inv *core.ToolInvocation, workingDir string) (*core.ToolResult, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil tool invocation")
	}

	reg, ok := e.catalogue.lookup(inv.ToolName)
	if !ok {
		return e.deny(inv, core.DispositionError, core.ErrValidation(core.CodeUnknownTool, "unknown tool: "+inv.ToolName)), nil
	}

	if err := validateArguments(reg.schema, inv.Arguments); err != nil {
		return e.deny(inv, core.DispositionError, core.ErrValidation(core.CodeInvalidArguments, err.Error())), nil
	}

	action := renderAction(inv.ToolName, inv.Arguments)
	var req *core.ApprovalRequest
	if reg.descriptor.RequiresApproval {
		req = e.approvals.Suspend(inv.TaskID, inv.CorrelationID, inv.ToolName, action, reg.descriptor.RiskLevel, 0)
	} else {
		req = e.approvals.Evaluate(inv.TaskID, inv.CorrelationID, inv.ToolName, action, reg.descriptor.RiskLevel, 0)
	}

	decision, modifiedArgs, _ := e.approvals.Await(ctx, req)
	if decision != core.ApprovalApproved {
		result := &core.ToolResult{IsError: true, Error: fmt.Sprintf("tool invocation %s: %s", inv.ToolName, decision)}
		inv.Disposition = core.DispositionDenied
		inv.Result = result
		e.publish(inv)
		return result, nil
	}
	if modifiedArgs != nil {
		inv.Arguments = modifiedArgs
	}

	result := e.invoke(ctx, reg, inv, workingDir)
	inv.Result = result
	if result.IsError {
		inv.Disposition = core.DispositionError
	} else {
		inv.Disposition = core.DispositionSuccess
	}
	e.publish(inv)
	return result, nil
}

func (e *Executor) invoke(ctx context.Context, reg *registration, inv *core.ToolInvocation, workingDir string) (result *core.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.With("tool", inv.ToolName, "task_id", inv.TaskID).Error("tool handler panicked", "panic", r)
			result = &core.ToolResult{IsError: true, Error: fmt.Sprintf("tool handler panicked: %v", r)}
		}
	}()

	out, err := reg.handler(ctx, inv, workingDir)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}
	}
	if out == nil {
		return &core.ToolResult{IsError: false}
	}
	return out
}

func (e *Executor) deny(inv *core.ToolInvocation, disposition core.InvocationDisposition, err *core.DomainError) *core.ToolResult {
	result := &core.ToolResult{IsError: true, Error: err.Error()}
	inv.Disposition = disposition
	inv.Result = result
	e.publish(inv)
	return result
}

func (e *Executor) publish(inv *core.ToolInvocation) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewToolInvokedEvent(inv.TaskID, inv.ToolName, inv.Disposition))
}

// renderAction produces the human-readable action description the
// Approval Broker's always-require/auto-approve regexes match against:
// "ToolName {k=v, k2=v2}" with keys sorted for determinism.
func renderAction(toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("%s {%s}", toolName, strings.Join(parts, ", "))
}
