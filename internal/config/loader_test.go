package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Minute, cfg.DefaultTaskTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "mock", cfg.LLM.Type)
	assert.Equal(t, "claude", cfg.ExternalCLI.Executable)
}

func TestLoadReadsProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".agentkit"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".agentkit", "config.yaml"), []byte(`
max_concurrent_tasks: 8
log:
  level: debug
`), 0o644))
	t.Chdir(dir)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".agentkit"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".agentkit", "config.yaml"), []byte("max_concurrent_tasks: 8\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("AGENTKIT_MAX_CONCURRENT_TASKS", "16")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxConcurrentTasks)
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := &Config{MaxConcurrentTasks: 0, SessionOutputBufferLimit: 4096, WorktreeBase: "x", WorkspaceRoot: "."}
	require.Error(t, Validate(cfg))
}
