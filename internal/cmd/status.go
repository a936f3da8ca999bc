package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/display"
	"github.com/thedataengineer/mahabharatha/internal/escalation"
	"github.com/thedataengineer/mahabharatha/internal/logger"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/thedataengineer/mahabharatha/internal/statestore"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current state of a feature's run",
		Long: `Reports each level's status and task counts, the workers currently
recorded in the FeatureState, and any unresolved escalations, without
touching the run itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	feature, _ := cmd.Flags().GetString("feature")
	if feature == "" {
		return fmt.Errorf("status requires --feature")
	}

	store := statestore.New(cfg.StatePath(feature))
	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading state for %s: %w", feature, err)
	}

	out := cmd.OutOrStdout()

	color := isatty.IsTerminal(os.Stdout.Fd())

	box := display.NewBox(fmt.Sprintf("%s — level %d", state.Feature, state.CurrentLevel))
	for _, lvl := range state.Levels {
		completed, failed, blocked := levelTaskCounts(lvl, state.Tasks)
		box.Line(fmt.Sprintf("level %d", lvl.Number), fmt.Sprintf(
			"%s (%d completed, %d failed, %d blocked of %d)",
			lvl.Status, completed, failed, blocked, len(lvl.TaskIDs),
		))
		box.Line(fmt.Sprintf("level %d progress", lvl.Number), renderLevelProgress(completed, len(lvl.TaskIDs), color))
	}
	box.Line("workers", fmt.Sprintf("%d recorded", len(state.Workers)))
	fmt.Fprint(out, box.String())

	escalations := escalation.New(cfg.EscalationsPath(feature))
	open, err := escalations.Unresolved()
	if err != nil {
		return fmt.Errorf("loading escalations: %w", err)
	}
	for _, e := range open {
		w := display.Warning{
			Title:      fmt.Sprintf("escalation on task %s (worker %d)", e.TaskID, e.WorkerID),
			Message:    e.Message,
			Suggestion: "resolve the underlying cause, then re-run or resume",
		}
		w.Display(cmd.ErrOrStderr())
	}

	if current := state.LevelByNumber(state.CurrentLevel); current != nil && current.HasBlocked(state.Tasks) {
		reportPath := filepath.Join(repoDirFromConfig(cfg), cfg.LogDir, feature+"-blockers.html")
		if err := writeBlockerReport(reportPath, state, open); err != nil {
			return fmt.Errorf("writing blocker report: %w", err)
		}
		fmt.Fprintf(out, "blocker report written to %s\n", reportPath)
	}

	return nil
}

func repoDirFromConfig(cfg *config.Config) string {
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return cfg.BaseDir
	}
	return abs
}

// writeBlockerReport renders a human-readable Markdown summary of the
// current level's blocked tasks and open escalations to HTML, for an
// operator to open outside the terminal.
func writeBlockerReport(path string, state *models.FeatureState, open []models.Escalation) error {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s — level %d blocked\n\n", state.Feature, state.CurrentLevel)

	lvl := state.LevelByNumber(state.CurrentLevel)
	if lvl != nil {
		md.WriteString("## Blocked tasks\n\n")
		for _, id := range lvl.TaskIDs {
			t, ok := state.Tasks[id]
			if !ok || t.Status != models.TaskBlocked {
				continue
			}
			fmt.Fprintf(&md, "- `%s`: %s\n", t.ID, t.Title)
		}
	}

	if len(open) > 0 {
		md.WriteString("\n## Unresolved escalations\n\n")
		for _, e := range open {
			fmt.Fprintf(&md, "- task `%s` (worker %d), %s: %s\n", e.TaskID, e.WorkerID, e.Category, e.Message)
		}
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &html); err != nil {
		return fmt.Errorf("rendering blocker report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, html.Bytes(), 0o644)
}

// renderLevelProgress draws a fixed-width ASCII bar for a level's
// completed/total task count, reusing the same ProgressBar the launcher
// process could use to report worker-local progress.
func renderLevelProgress(completed, total int, color bool) string {
	bar := logger.NewProgressBar(total, 20, color)
	bar.Update(completed)
	return bar.Render()
}

func levelTaskCounts(lvl *models.Level, tasks map[string]*models.Task) (completed, failed, blocked int) {
	for _, id := range lvl.TaskIDs {
		t, ok := tasks[id]
		if !ok {
			continue
		}
		switch t.Status {
		case models.TaskCompleted:
			completed++
		case models.TaskFailed:
			failed++
		case models.TaskBlocked:
			blocked++
		}
	}
	return
}
