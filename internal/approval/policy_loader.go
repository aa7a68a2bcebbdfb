package approval

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentkit-run/agentkit/internal/core"
)

// LoadPolicy reads an approval policy from a YAML or JSON file (§6.6) and
// compiles its regex lists. YAML is a superset of JSON so one decoder
// handles both; the file extension is not consulted.
func LoadPolicy(path string) (*core.ApprovalPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var policy core.ApprovalPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "parsing approval policy "+path+": "+err.Error())
	}
	if err := policy.Compile(); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "compiling approval policy "+path+": "+err.Error())
	}
	return &policy, nil
}

// DefaultPolicy is used when no policy file is configured or found: allow
// everything up to medium risk automatically, require approval above that.
func DefaultPolicy() *core.ApprovalPolicy {
	policy := &core.ApprovalPolicy{
		Name:               "default",
		MaxAutoApproveRisk: core.RiskMedium,
	}
	_ = policy.Compile()
	return policy
}

// LoadPolicyOrDefault loads path if it exists, falling back to
// DefaultPolicy when the file is missing — a missing policy file is not an
// error, matching the teacher's config loader's "optional file" stance.
func LoadPolicyOrDefault(path string) (*core.ApprovalPolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	policy, err := LoadPolicy(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}
	return policy, nil
}
