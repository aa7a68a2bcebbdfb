package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Loader resolves Config from, in increasing precedence: built-in defaults,
// a user config (~/.config/agentkit/config.yaml), a project config
// (.agentkit/config.yaml), then AGENTKIT_* environment variables.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	mu         sync.Mutex
}

func NewLoader() *Loader {
	return &Loader{v: viper.New(), envPrefix: "AGENTKIT"}
}

// WithConfigFile pins an explicit path, skipping the search-path probe.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

func (l *Loader) Viper() *viper.Viper { return l.v }

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.addr", ":8090")
	l.v.SetDefault("server.cors_origins", []string{"*"})

	l.v.SetDefault("workspace_root", ".")
	l.v.SetDefault("worktree_base", ".agentkit/worktrees")
	l.v.SetDefault("max_concurrent_tasks", 4)
	l.v.SetDefault("session_output_buffer_limit", 1<<20) // 1 MiB
	l.v.SetDefault("default_task_timeout", "30m")
	l.v.SetDefault("approval_policy_path", ".agentkit/approval-policy.yaml")
	l.v.SetDefault("gc_idle_age", "24h")

	l.v.SetDefault("registry_backend", "json")
	l.v.SetDefault("registry_snapshot_path", ".agentkit/registry.json")
	l.v.SetDefault("registry_flush_every", "5s")

	l.v.SetDefault("llm.type", "mock")
	l.v.SetDefault("llm.timeout", "2m")

	l.v.SetDefault("external_cli.executable", "claude")
	l.v.SetDefault("external_cli.args", []string{"--print"})
	l.v.SetDefault("external_cli.timeout", "30m")
}

// Load reads the config file (if any is found), applies environment
// overrides, and unmarshals into a Config. A missing config file is not an
// error — the core runs on defaults.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".agentkit")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "agentkit"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the handful of invariants that would otherwise surface as
// confusing failures deep inside the router or worktree manager.
func Validate(cfg *Config) error {
	if cfg.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be >= 1, got %d", cfg.MaxConcurrentTasks)
	}
	if cfg.SessionOutputBufferLimit < 1024 {
		return fmt.Errorf("session_output_buffer_limit must be >= 1024 bytes, got %d", cfg.SessionOutputBufferLimit)
	}
	if cfg.WorktreeBase == "" {
		return fmt.Errorf("worktree_base must not be empty")
	}
	if cfg.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root must not be empty")
	}
	return nil
}
