package core

import (
	"regexp"
	"time"
)

// ApprovalDecision is the exactly-once, immutable-once-terminal outcome of
// an Approval Request.
type ApprovalDecision string

const (
	ApprovalPending  ApprovalDecision = "pending"
	ApprovalApproved ApprovalDecision = "approved"
	ApprovalDenied   ApprovalDecision = "denied"
	ApprovalTimedOut ApprovalDecision = "timed-out"
)

func (d ApprovalDecision) Terminal() bool {
	return d != ApprovalPending
}

// ApprovalRequest is a pending human decision derived from a risky Tool
// Invocation.
type ApprovalRequest struct {
	RequestID         string           `json:"request_id"`
	TaskID            string           `json:"task_id"`
	CorrelationID     string           `json:"correlation_id"`
	ToolName          string           `json:"tool_name"`
	ActionDescription string           `json:"action_description"`
	Risk              RiskLevel        `json:"risk"`
	Decision          ApprovalDecision `json:"decision"`
	CreatedAt         time.Time        `json:"created_at"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty"`
	Timeout           time.Duration    `json:"timeout,omitempty"`
	ModifiedArguments map[string]any   `json:"modified_arguments,omitempty"`
}

// ApprovalPolicy is declarative and evaluated purely: the only mutable state
// it influences is the per-tool trust counter, which the broker owns
// separately.
type ApprovalPolicy struct {
	Name                string         `json:"name" yaml:"name"`
	AlwaysRequire       []string       `json:"always_require" yaml:"always_require"`        // regex over rendered action description
	AutoApprove         []string       `json:"auto_approve" yaml:"auto_approve"`          // regex over rendered action description
	AllowTools          []string       `json:"allow_tools" yaml:"allow_tools"`
	DenyTools           []string       `json:"deny_tools" yaml:"deny_tools"`
	MaxAutoApproveRisk  RiskLevel      `json:"max_auto_approve_risk" yaml:"max_auto_approve_risk"`
	TrustThreshold      int            `json:"trust_threshold,omitempty" yaml:"trust_threshold,omitempty"` // 0 disables trust promotion

	alwaysRequireRe []*regexp.Regexp
	autoApproveRe   []*regexp.Regexp
}

// Compile precompiles the policy's regex lists. Must be called once after
// loading (or unmarshalling) the policy, before Evaluate is used.
func (p *ApprovalPolicy) Compile() error {
	var err error
	p.alwaysRequireRe, err = compileAll(p.AlwaysRequire)
	if err != nil {
		return ErrValidation("INVALID_POLICY", "always-require pattern: "+err.Error())
	}
	p.autoApproveRe, err = compileAll(p.AutoApprove)
	if err != nil {
		return ErrValidation("INVALID_POLICY", "auto-approve pattern: "+err.Error())
	}
	return nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (p *ApprovalPolicy) matchesAlwaysRequire(action string) bool {
	for _, re := range p.alwaysRequireRe {
		if re.MatchString(action) {
			return true
		}
	}
	return false
}

func (p *ApprovalPolicy) matchesAutoApprove(action string) bool {
	for _, re := range p.autoApproveRe {
		if re.MatchString(action) {
			return true
		}
	}
	return false
}

func (p *ApprovalPolicy) allows(tool string) bool {
	for _, t := range p.AllowTools {
		if t == tool {
			return true
		}
	}
	return false
}

func (p *ApprovalPolicy) denies(tool string) bool {
	for _, t := range p.DenyTools {
		if t == tool {
			return true
		}
	}
	return false
}

// Decision is what Evaluate returns: whether the invocation may proceed
// without a human, and why.
type Decision struct {
	AutoApprove bool
	Reason      string
}

// Evaluate applies the policy rules in the order spec.md §4.6 step 3
// describes, given the current trust counter for the tool (owned by the
// broker, passed in read-only).
func (p *ApprovalPolicy) Evaluate(tool string, risk RiskLevel, action string, trustCount int) Decision {
	if p.denies(tool) {
		return Decision{AutoApprove: false, Reason: "tool denied by policy"}
	}
	if p.matchesAlwaysRequire(action) {
		return Decision{AutoApprove: false, Reason: "matches always-require pattern"}
	}
	if p.allows(tool) {
		return Decision{AutoApprove: true, Reason: "tool in allow list"}
	}
	if p.matchesAutoApprove(action) {
		return Decision{AutoApprove: true, Reason: "matches auto-approve pattern"}
	}
	if p.TrustThreshold > 0 && trustCount >= p.TrustThreshold {
		return Decision{AutoApprove: true, Reason: "tool trusted after repeated approvals"}
	}
	if risk.AtOrBelow(p.MaxAutoApproveRisk) {
		return Decision{AutoApprove: true, Reason: "risk at or below auto-approve ceiling"}
	}
	return Decision{AutoApprove: false, Reason: "requires human approval"}
}
