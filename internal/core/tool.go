package core

// RiskLevel is a tool's declared static risk, used by the Approval Broker's
// auto-approve ceiling comparison.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtOrBelow reports whether r is at or below ceiling in the fixed ordering
// low < medium < high < critical. Unknown levels never satisfy a ceiling.
func (r RiskLevel) AtOrBelow(ceiling RiskLevel) bool {
	rv, ok1 := riskOrder[r]
	cv, ok2 := riskOrder[ceiling]
	return ok1 && ok2 && rv <= cv
}

// InvocationDisposition is the exactly-one terminal outcome of a Tool
// Invocation.
type InvocationDisposition string

const (
	DispositionPending InvocationDisposition = "pending"
	DispositionSuccess InvocationDisposition = "executed-success"
	DispositionError   InvocationDisposition = "executed-error"
	DispositionDenied  InvocationDisposition = "denied"
	DispositionTimeout InvocationDisposition = "timed-out"
)

func (d InvocationDisposition) Terminal() bool {
	return d != DispositionPending
}

// ToolInvocation is the triple <tool-name, argument map, risk
// classification> emitted by the Agent Loop, carrying a correlation id so
// its result can be stitched back into the conversation.
type ToolInvocation struct {
	CorrelationID string                 `json:"correlation_id"`
	TaskID        string                 `json:"task_id"`
	SessionID     string                 `json:"session_id"`
	ToolName      string                 `json:"tool_name"`
	Arguments     map[string]any         `json:"arguments"`
	Risk          RiskLevel              `json:"risk"`
	Disposition   InvocationDisposition  `json:"disposition"`
	Result        *ToolResult            `json:"result,omitempty"`
}

// ToolResult is what a tool handler (or the executor, on its behalf)
// produces: exactly one of Output or Error is meaningful.
type ToolResult struct {
	IsError bool           `json:"is_error"`
	Output  any            `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ToolSchemaProperty describes one property of a tool's input schema, shaped
// to match the remote agent protocol's tool catalogue (§6.4).
type ToolSchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ToolInputSchema is the JSON-schema-like description of a tool's argument
// shape — required fields present, declared primitive types match.
type ToolInputSchema struct {
	Type       string                        `json:"type"`
	Properties map[string]ToolSchemaProperty `json:"properties"`
	Required   []string                      `json:"required,omitempty"`
}

// ToolDescriptor is a tool's catalogue entry: stable name, description,
// input schema, declared static risk, and whether approval is required
// regardless of risk ceiling (distinct from the risk-driven policy path).
type ToolDescriptor struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	InputSchema       ToolInputSchema `json:"input_schema"`
	RiskLevel         RiskLevel       `json:"risk_level"`
	RequiresApproval  bool            `json:"requires_approval"`
}
