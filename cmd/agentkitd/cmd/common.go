package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/agentkit-run/agentkit/internal/a2a"
	"github.com/agentkit-run/agentkit/internal/agentloop"
	"github.com/agentkit-run/agentkit/internal/approval"
	"github.com/agentkit-run/agentkit/internal/config"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
	"github.com/agentkit-run/agentkit/internal/process"
	"github.com/agentkit-run/agentkit/internal/provider"
	"github.com/agentkit-run/agentkit/internal/registry"
	"github.com/agentkit-run/agentkit/internal/router"
	"github.com/agentkit-run/agentkit/internal/server"
	"github.com/agentkit-run/agentkit/internal/session"
	"github.com/agentkit-run/agentkit/internal/tool"
	"github.com/agentkit-run/agentkit/internal/worktree"
)

// infra is every long-lived component the daemon wires together, built once
// by buildInfra for the serve command (task, worktree and doctor do not use
// it). Grounded on
// the teacher's cmd/quorum/cmd wiring, which assembles its adapters in one
// place (cmd/quorum/cmd/root.go's runChat) rather than scattering
// construction across each subcommand.
type infra struct {
	cfg        *config.Config
	log        *logging.Logger
	bus        *events.EventBus
	worktrees  *worktree.Manager
	sessions   *session.Registry
	router     *router.Router
	approvals  *approval.Broker
	catalogue  *tool.Catalogue
	store      registry.Store
	httpServer *server.Server
}

// loadConfig runs config.Loader and then applies the --addr and bound
// log-flag overrides on top of what it produced, since the flags are read
// after cobra parses args.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if serverAddr != "" {
		cfg.Server.Addr = serverAddr
	}
	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	if viper.IsSet("log.format") {
		cfg.Log.Format = viper.GetString("log.format")
	}
	return cfg, nil
}

// buildInfra wires every component the daemon needs: worktrees, process
// supervision, the event bus, approvals, the tool catalogue, the LLM
// provider, sessions, the agent loop, the two runners, the task router, the
// crash-recovery store and its recorder, and the HTTP/remote-agent server.
func buildInfra(ctx context.Context, cfg *config.Config) (*infra, error) {
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	wm, err := worktree.New(cfg.WorkspaceRoot, cfg.WorktreeBase, log)
	if err != nil {
		return nil, fmt.Errorf("constructing worktree manager: %w", err)
	}
	if err := wm.Reconcile(ctx); err != nil {
		log.Warn("worktree reconciliation failed", "error", err)
	}
	if err := wm.Watch(ctx); err != nil {
		log.Warn("worktree watch failed to start", "error", err)
	}

	supervisor := process.New(log)
	bus := events.New(256)
	sessions := session.New(cfg.SessionOutputBufferLimit, log)

	policy, err := approval.LoadPolicyOrDefault(cfg.ApprovalPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading approval policy: %w", err)
	}
	broker := approval.New(policy, bus, log)

	catalogue := tool.NewCatalogue()
	if err := tool.RegisterBuiltins(catalogue); err != nil {
		return nil, fmt.Errorf("registering builtin tools: %w", err)
	}
	executor := tool.NewExecutor(catalogue, broker, bus, log)

	llmProvider, err := provider.New(provider.Config{
		Type:    cfg.LLM.Type,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing llm provider: %w", err)
	}

	loop := agentloop.New(llmProvider, catalogue, executor, sessions, log)

	embedded := &router.EmbeddedLoopRunner{Loop: loop, Sessions: sessions}
	external := &router.ExternalCLIRunner{
		Supervisor: supervisor,
		Sessions:   sessions,
		Executable: cfg.ExternalCLI.Executable,
		Args:       cfg.ExternalCLI.Args,
		Timeout:    cfg.ExternalCLI.Timeout,
	}

	taskRouter := router.New(router.Config{MaxConcurrentTasks: cfg.MaxConcurrentTasks}, wm, sessions, embedded, external, bus, log)
	go taskRouter.Run(ctx)

	store, err := openRegistryStore(cfg, log)
	if err != nil {
		return nil, err
	}
	recorder := registry.NewRecorder(store, taskRouter, bus, log)
	go recorder.Run(ctx)

	a2aServer := a2a.NewServer(a2a.Config{
		Name:         "agentkit",
		Version:      GetVersion(),
		Capabilities: []string{"streaming"},
		Skills: []a2a.AgentSkill{
			{ID: "code", Name: "Code changes", Description: "Implements changes to a git worktree and reports a diff."},
		},
	}, taskRouter, broker, catalogue, log)

	httpServer := server.NewServer(a2aServer, sessions, log,
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	return &infra{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		worktrees:  wm,
		sessions:   sessions,
		router:     taskRouter,
		approvals:  broker,
		catalogue:  catalogue,
		store:      store,
		httpServer: httpServer,
	}, nil
}

func openRegistryStore(cfg *config.Config, log *logging.Logger) (registry.Store, error) {
	switch cfg.RegistryBackend {
	case "", "json":
		return registry.NewJSONStore(cfg.RegistrySnapshotPath, cfg.RegistryFlushEvery, log)
	case "sqlite":
		return registry.NewSQLiteStore(cfg.RegistrySnapshotPath)
	default:
		return nil, fmt.Errorf("unknown registry_backend %q", cfg.RegistryBackend)
	}
}

func (i *infra) Close() {
	i.worktrees.StopWatch()
	if err := i.store.Close(); err != nil {
		i.log.Warn("closing registry store failed", "error", err)
	}
}
