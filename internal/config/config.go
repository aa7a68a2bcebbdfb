// Package config loads the orchestration core's configuration from a
// YAML/JSON file via viper, with AGENTKIT_* environment overrides and
// struct defaults. Hot-reload is out of scope: config changes require a
// restart (see SPEC_FULL.md's Open Question decision on policy reload,
// which the approval package handles separately).
package config

import "time"

// Config is the exhaustive configuration surface of the orchestration core
// (§6.7): workspace-root, worktree-base, max-concurrent-tasks,
// session-output-buffer-limit, default-task-timeout, approval-policy-path,
// gc-idle-age, plus the registry snapshot, LLM provider and external-CLI
// settings and the ambient logging/server knobs the teacher always carries
// regardless of the domain's own scope.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`

	WorkspaceRoot            string        `mapstructure:"workspace_root"`
	WorktreeBase             string        `mapstructure:"worktree_base"`
	MaxConcurrentTasks       int           `mapstructure:"max_concurrent_tasks"`
	SessionOutputBufferLimit int           `mapstructure:"session_output_buffer_limit"`
	DefaultTaskTimeout       time.Duration `mapstructure:"default_task_timeout"`
	ApprovalPolicyPath       string        `mapstructure:"approval_policy_path"`
	GCIdleAge                time.Duration `mapstructure:"gc_idle_age"`

	RegistryBackend      string        `mapstructure:"registry_backend"`
	RegistrySnapshotPath string        `mapstructure:"registry_snapshot_path"`
	RegistryFlushEvery   time.Duration `mapstructure:"registry_flush_every"`

	LLM         LLMConfig         `mapstructure:"llm"`
	ExternalCLI ExternalCLIConfig `mapstructure:"external_cli"`
}

// ExternalCLIConfig names the coding-assistant executable the Task Router's
// external-cli runner shells out to via the Process Supervisor.
type ExternalCLIConfig struct {
	Executable string        `mapstructure:"executable"`
	Args       []string      `mapstructure:"args"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig selects and configures the Agent Loop's LLM Provider (§6.1).
// Mirrors internal/provider.Config field-for-field so loading stays a
// straight struct copy at wiring time.
type LLMConfig struct {
	Type    string        `mapstructure:"type"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
}
