package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration core and its remote agent protocol server",
	Long: `serve starts the task router, worktree manager, and agent loop, and
exposes them over the remote agent protocol: the agent card, health check,
JSON-RPC task submission, and the session output stream.`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := buildInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- infra.httpServer.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	infra.log.Info("agentkitd started", "addr", cfg.Server.Addr, "registry_backend", cfg.RegistryBackend)
	fmt.Printf("agentkitd listening on %s\n", cfg.Server.Addr)

	select {
	case <-sigCh:
		infra.log.Info("shutting down")
		cancel()
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}
	return nil
}
