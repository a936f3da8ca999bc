package cmd

import (
	"github.com/spf13/cobra"
)

func newResumeCommand() *cobra.Command {
	var (
		maxConcurrency int
		backend        string
		force          bool
	)

	cmd := &cobra.Command{
		Use:   "resume <task-graph-file>",
		Short: "Continue a previously started run from its saved state",
		Long: `Reloads the same task-graph document used to start a run and
continues driving it to completion from whatever FeatureState was last
persisted: in-flight levels resume, already-merged levels are skipped,
and workers are re-dispatched for tasks that were still pending or
running when the prior run stopped.

--force lets a level that has a blocked task merge its completed work
instead of failing; the prior-level-not-complete guard still applies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				graphPath:      args[0],
				maxConcurrency: maxConcurrency,
				backend:        backend,
				defaultBranch:  "main",
				force:          force,
			}
			return runFeature(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "override scheduler.max_concurrency from config")
	cmd.Flags().StringVar(&backend, "backend", "", "override launcher backend: auto|process|container")
	cmd.Flags().BoolVar(&force, "force", false, "let a level with a blocked task merge instead of failing")

	return cmd
}
