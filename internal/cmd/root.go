// Package cmd wires the mahabharatha CLI: run, validate, status, resume,
// gate, and worktree subcommands over the orchestrator's internal
// packages.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root cobra command for the mahabharatha
// orchestrator. version is injected by main at build time.
func NewRootCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mahabharatha",
		Short: "Parallel LLM-worker task orchestration",
		Long: `mahabharatha schedules, isolates, verifies, and merges the work of
multiple LLM workers executing a dependency-ordered task graph.

It loads a task-graph document, derives dependency levels, dispatches
ready tasks to isolated git worktrees, monitors worker heartbeats,
runs quality gates at each level boundary, and merges completed work
back onto a shared base branch.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a mahabharatha config file (default: none; built-in defaults and MAHABHARATHA_* environment only)")
	cmd.PersistentFlags().String("feature", "", "feature name identifying this run's state, branches, and worktrees")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newGateCommand())
	cmd.AddCommand(newWorktreeCommand())

	return cmd
}
