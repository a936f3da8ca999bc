package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thedataengineer/mahabharatha/internal/display"
	"github.com/thedataengineer/mahabharatha/internal/graph"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <task-graph-file>",
		Short: "Validate a task graph without creating any run state",
		Long: `Loads and validates a task-graph document: checks for dependency
cycles, missing dependency references, and overlapping file ownership
within the same level, then reports the derived dependency levels.

Unlike "run", validate never touches the state store, so it is safe to
run repeatedly while authoring a task graph.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	display.DisplaySingleFile(out, path)

	g, err := graph.Load(path)
	if err != nil {
		if invalid, ok := err.(*graph.InvalidGraphError); ok {
			fmt.Fprintf(out, "invalid: %d issue(s) found\n", len(invalid.Issues))
			for _, issue := range invalid.Issues {
				fmt.Fprintf(out, "  - [%s] %s\n", issue.Kind, issue.Message)
			}
			return invalid
		}
		return err
	}

	fmt.Fprintf(out, "valid: %d task(s) across %d level(s)\n", len(g.Tasks), len(g.Levels))

	progress := display.NewProgressIndicator(out, len(g.Levels))
	progress.Start()
	for n := 1; n <= g.MaxLevel(); n++ {
		ids, ok := g.Levels[n]
		if !ok {
			continue
		}
		progress.Step(fmt.Sprintf("level %d: %v", n, ids))
	}
	progress.Complete()
	return nil
}
