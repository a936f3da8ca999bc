package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/worktree"
)

func newWorktreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Inspect and clean up worker worktrees",
	}
	cmd.AddCommand(newWorktreeListCommand())
	cmd.AddCommand(newWorktreePruneCommand())
	return cmd
}

func newWorktreeListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List worktrees materialized for a feature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, wt, err := loadWorktreeManager(cmd)
			if err != nil {
				return err
			}
			handles, err := wt.List(feature)
			if err != nil {
				return fmt.Errorf("listing worktrees: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(handles) == 0 {
				fmt.Fprintln(out, "no worktrees found")
				return nil
			}
			for _, h := range handles {
				fmt.Fprintf(out, "%s  %s\n", h.Branch, h.Path)
			}
			return nil
		},
	}
	return cmd
}

func newWorktreePruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale worktree registrations",
		Long: `Runs "git worktree prune" to drop registrations for worktrees whose
on-disk directory no longer exists (e.g. removed manually outside the
orchestrator).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, wt, err := loadWorktreeManager(cmd)
			if err != nil {
				return err
			}
			if err := wt.PruneStale(cmd.Context()); err != nil {
				return fmt.Errorf("pruning worktrees: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pruned stale worktrees")
			return nil
		},
	}
	return cmd
}

func loadWorktreeManager(cmd *cobra.Command) (string, *worktree.Manager, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", nil, fmt.Errorf("loading config: %w", err)
	}
	feature, _ := cmd.Flags().GetString("feature")
	if feature == "" {
		return "", nil, fmt.Errorf("this command requires --feature")
	}
	repoDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving repository root: %w", err)
	}
	return feature, worktree.New(repoDir, cfg.Worktree, nil), nil
}
