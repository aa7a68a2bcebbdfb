package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/approval"
	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

type readArgs struct {
	Path string `json:"path" jsonschema:"required,description=file to read"`
}

func echoHandler(_ context.Context, inv *core.ToolInvocation, _ string) (*core.ToolResult, error) {
	return &core.ToolResult{Output: inv.Arguments["path"]}, nil
}

func newTestExecutor(t *testing.T, policy *core.ApprovalPolicy) (*Executor, *Catalogue) {
	t.Helper()
	require.NoError(t, policy.Compile())
	broker := approval.New(policy, nil, logging.Nop())
	cat := NewCatalogue()
	return NewExecutor(cat, broker, nil, logging.Nop()), cat
}

func TestExecuteAutoApprovedToolSucceeds(t *testing.T) {
	exec, cat := newTestExecutor(t, &core.ApprovalPolicy{MaxAutoApproveRisk: core.RiskMedium})
	require.NoError(t, cat.Register(core.ToolDescriptor{
		Name:        "Read",
		InputSchema: GenerateInputSchema(readArgs{}),
		RiskLevel:   core.RiskLow,
	}, echoHandler))

	inv := &core.ToolInvocation{TaskID: "t-1", ToolName: "Read", Arguments: map[string]any{"path": "/tmp/x"}, Risk: core.RiskLow}
	result, err := exec.Execute(context.Background(), inv, "/tmp")
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "/tmp/x", result.Output)
	assert.Equal(t, core.DispositionSuccess, inv.Disposition)
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	exec, _ := newTestExecutor(t, &core.ApprovalPolicy{MaxAutoApproveRisk: core.RiskMedium})
	inv := &core.ToolInvocation{TaskID: "t-1", ToolName: "Nope", Arguments: map[string]any{}}
	result, err := exec.Execute(context.Background(), inv, "/tmp")
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, core.DispositionError, inv.Disposition)
}

func TestExecuteMissingRequiredArgumentFails(t *testing.T) {
	exec, cat := newTestExecutor(t, &core.ApprovalPolicy{MaxAutoApproveRisk: core.RiskMedium})
	require.NoError(t, cat.Register(core.ToolDescriptor{
		Name:        "Read",
		InputSchema: GenerateInputSchema(readArgs{}),
		RiskLevel:   core.RiskLow,
	}, echoHandler))

	inv := &core.ToolInvocation{TaskID: "t-1", ToolName: "Read", Arguments: map[string]any{}}
	result, err := exec.Execute(context.Background(), inv, "/tmp")
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecuteRequiringApprovalSuspendsUntilResolved(t *testing.T) {
	broker := approval.New(mustCompiled(t, &core.ApprovalPolicy{MaxAutoApproveRisk: core.RiskMedium}), nil, logging.Nop())
	cat := NewCatalogue()
	require.NoError(t, cat.Register(core.ToolDescriptor{
		Name:             "Write",
		InputSchema:      GenerateInputSchema(readArgs{}),
		RiskLevel:        core.RiskLow,
		RequiresApproval: true,
	}, echoHandler))
	exec := NewExecutor(cat, broker, nil, logging.Nop())

	inv := &core.ToolInvocation{TaskID: "t-1", CorrelationID: "c-1", ToolName: "Write", Arguments: map[string]any{"path": "/tmp/y"}}

	resultCh := make(chan *core.ToolResult, 1)
	go func() {
		r, _ := exec.Execute(context.Background(), inv, "/tmp")
		resultCh <- r
	}()

	time.Sleep(20 * time.Millisecond)
	pending := broker.Pending()
	require.Len(t, pending, 1)
	require.NoError(t, broker.Resolve(pending[0].RequestID, core.ApprovalApproved, nil))

	select {
	case result := <-resultCh:
		assert.False(t, result.IsError)
	case <-time.After(time.Second):
		t.Fatal("execute never returned after approval")
	}
}

func TestExecuteDeniedToolReturnsErrorResult(t *testing.T) {
	broker := approval.New(mustCompiled(t, &core.ApprovalPolicy{MaxAutoApproveRisk: core.RiskLow}), nil, logging.Nop())
	cat := NewCatalogue()
	require.NoError(t, cat.Register(core.ToolDescriptor{
		Name:        "Bash",
		InputSchema: GenerateInputSchema(readArgs{}),
		RiskLevel:   core.RiskHigh,
	}, echoHandler))
	exec := NewExecutor(cat, broker, nil, logging.Nop())

	inv := &core.ToolInvocation{TaskID: "t-1", ToolName: "Bash", Arguments: map[string]any{"path": "/tmp/y"}}

	resultCh := make(chan *core.ToolResult, 1)
	go func() {
		r, _ := exec.Execute(context.Background(), inv, "/tmp")
		resultCh <- r
	}()

	time.Sleep(20 * time.Millisecond)
	pending := broker.Pending()
	require.Len(t, pending, 1)
	require.NoError(t, broker.Resolve(pending[0].RequestID, core.ApprovalDenied, nil))

	select {
	case result := <-resultCh:
		assert.True(t, result.IsError)
		assert.Equal(t, core.DispositionDenied, inv.Disposition)
	case <-time.After(time.Second):
		t.Fatal("execute never returned after denial")
	}
}

func mustCompiled(t *testing.T, p *core.ApprovalPolicy) *core.ApprovalPolicy {
	t.Helper()
	require.NoError(t, p.Compile())
	return p
}
