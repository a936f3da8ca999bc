package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/gate"
)

func newGateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Run the quality-gate pipeline manually against a directory",
	}
	cmd.AddCommand(newGateRunCommand())
	return cmd
}

func newGateRunCommand() *cobra.Command {
	var level int

	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Run every configured gate against a checkout for diagnosis",
		Long: `Executes the configured gate pipeline against an arbitrary directory
(typically an operator's own checkout of a merge candidate), bypassing
the merge coordinator entirely. Useful for reproducing why a level's
merge failed a required gate, without driving a real level through the
orchestrator.

Results are not written to the fingerprint cache shared with real
runs: each invocation is a fresh, uncached execution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateRun(cmd, args[0], level)
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "level number to attribute results to in the report")
	return cmd
}

func runGateRun(cmd *cobra.Command, dir string, level int) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Gates) == 0 {
		return fmt.Errorf("no gates configured")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}

	treeHash, err := gitTreeHash(cmd.Context(), absDir)
	if err != nil {
		return fmt.Errorf("reading tree hash: %w", err)
	}

	cache := gate.NewCache(cfg.GateCache.FreshnessWindow())
	pipeline := gate.NewPipeline(nil, cache, filepath.Join(cfg.BaseDir, cfg.LogDir, "gates"), "manual")

	result := pipeline.Run(cmd.Context(), level, absDir, treeHash, cfg.Gates)

	out := cmd.OutOrStdout()
	for _, r := range result.GateResults {
		fmt.Fprintf(out, "%-20s %-8s exit=%d\n", r.Gate, r.Outcome, r.ExitCode)
	}
	if result.Passed {
		fmt.Fprintln(out, "gates passed")
		return nil
	}
	fmt.Fprintln(out, "gates blocked the merge")
	return fmt.Errorf("one or more required gates failed")
}

func gitTreeHash(ctx context.Context, dir string) (string, error) {
	c := exec.CommandContext(ctx, "git", "rev-parse", "HEAD^{tree}")
	c.Dir = dir
	out, err := c.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
