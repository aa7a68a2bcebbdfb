package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentkit-run/agentkit/internal/logging"
	"github.com/agentkit-run/agentkit/internal/worktree"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Inspect and reclaim task worktrees directly on disk",
}

var worktreeGCIdleAge time.Duration

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every worktree the manager knows about",
	RunE:  runWorktreeList,
}

var worktreeGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim terminal worktrees idle past their GC threshold",
	RunE:  runWorktreeGC,
}

func init() {
	worktreeGCCmd.Flags().DurationVar(&worktreeGCIdleAge, "idle-age", 0, "override gc_idle_age for this run")
	worktreeCmd.AddCommand(worktreeListCmd, worktreeGCCmd)
}

func openWorktreeManager() (*worktree.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	m, err := worktree.New(cfg.WorkspaceRoot, cfg.WorktreeBase, log)
	if err != nil {
		return nil, fmt.Errorf("opening worktree manager: %w", err)
	}
	if err := m.Reconcile(context.Background()); err != nil {
		return nil, fmt.Errorf("reconciling worktrees: %w", err)
	}
	return m, nil
}

func runWorktreeList(_ *cobra.Command, _ []string) error {
	m, err := openWorktreeManager()
	if err != nil {
		return err
	}
	all := m.List()
	if len(all) == 0 {
		fmt.Println("no worktrees")
		return nil
	}
	for _, wt := range all {
		fmt.Printf("%-20s %-10s %-30s %s\n", wt.TaskID, wt.Status, wt.BranchName, wt.Path)
	}
	return nil
}

func runWorktreeGC(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idleAge := cfg.GCIdleAge
	if worktreeGCIdleAge > 0 {
		idleAge = worktreeGCIdleAge
	}

	m, err := openWorktreeManager()
	if err != nil {
		return err
	}
	reclaimed, err := m.GC(context.Background(), idleAge)
	if err != nil {
		return fmt.Errorf("running gc: %w", err)
	}
	fmt.Printf("reclaimed %d worktree(s)\n", reclaimed)
	return nil
}
