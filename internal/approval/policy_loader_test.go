package approval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
)

func TestLoadPolicyParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: ci
max_auto_approve_risk: high
deny_tools: ["shell_exec"]
always_require: ["^rm -rf"]
`), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "ci", policy.Name)
	assert.Equal(t, core.RiskHigh, policy.MaxAutoApproveRisk)
	decision := policy.Evaluate("shell_exec", core.RiskLow, "rm -rf /", 0)
	assert.False(t, decision.AutoApprove)
}

func TestLoadPolicyOrDefaultFallsBackWhenMissing(t *testing.T) {
	policy, err := LoadPolicyOrDefault(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", policy.Name)
}

func TestLoadPolicyOrDefaultEmptyPath(t *testing.T) {
	policy, err := LoadPolicyOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "default", policy.Name)
}
