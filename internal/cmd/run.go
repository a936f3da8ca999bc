package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/escalation"
	"github.com/thedataengineer/mahabharatha/internal/gate"
	"github.com/thedataengineer/mahabharatha/internal/graph"
	"github.com/thedataengineer/mahabharatha/internal/launcher"
	"github.com/thedataengineer/mahabharatha/internal/logger"
	"github.com/thedataengineer/mahabharatha/internal/merge"
	"github.com/thedataengineer/mahabharatha/internal/metrics"
	"github.com/thedataengineer/mahabharatha/internal/orchestrator"
	"github.com/thedataengineer/mahabharatha/internal/statestore"
	"github.com/thedataengineer/mahabharatha/internal/worktree"
)

func newRunCommand() *cobra.Command {
	var (
		maxConcurrency int
		backend        string
		defaultBranch  string
	)

	cmd := &cobra.Command{
		Use:   "run <task-graph-file>",
		Short: "Execute a task graph from the beginning",
		Long: `Loads a task-graph document, derives its dependency levels, and
drives every level to completion: dispatching ready tasks to isolated
worktrees, monitoring worker heartbeats, merging each level's
contributions through the gate pipeline, and advancing to the next
level only once the current one is fully merged.

A run that stops partway (operator interrupt, crash, unrecoverable
escalation) can be continued with "mahabharatha resume" against the
same feature and task-graph file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				graphPath:      args[0],
				maxConcurrency: maxConcurrency,
				backend:        backend,
				defaultBranch:  defaultBranch,
			}
			return runFeature(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "override scheduler.max_concurrency from config")
	cmd.Flags().StringVar(&backend, "backend", "", "override launcher backend: auto|process|container")
	cmd.Flags().StringVar(&defaultBranch, "default-branch", "main", "branch the feature's base branch is created from")

	return cmd
}

type runOptions struct {
	graphPath      string
	maxConcurrency int
	backend        string
	defaultBranch  string
	force          bool
}

// runFeature loads config and the task graph named by opts, seeds or
// resumes its FeatureState, wires every collaborator the orchestrator
// needs, and drives the run to completion or the first unrecoverable
// error. It backs both the run and resume subcommands: Seed is
// idempotent, so the only difference between "run" and "resume" is
// operator intent, not code path.
func runFeature(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.maxConcurrency > 0 {
		cfg.Scheduler.MaxConcurrency = opts.maxConcurrency
	}
	if opts.backend != "" {
		cfg.Launcher.Backend = config.LauncherBackend(opts.backend)
	}

	feature, _ := cmd.Flags().GetString("feature")
	if feature == "" {
		feature = defaultFeatureName(opts.graphPath)
	}
	cfg.Feature = feature

	repoDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("resolving repository root: %w", err)
	}

	g, err := graph.Load(opts.graphPath)
	if err != nil {
		return fmt.Errorf("loading task graph: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(repoDir, cfg.StateDir), 0o755); err != nil {
		return fmt.Errorf("preparing state directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(repoDir, cfg.LogDir), 0o755); err != nil {
		return fmt.Errorf("preparing log directory: %w", err)
	}

	store := statestore.New(cfg.StatePath(feature))
	if _, err := store.Init(feature); err != nil {
		return fmt.Errorf("initializing state: %w", err)
	}
	if _, err := orchestrator.Seed(store, g); err != nil {
		return fmt.Errorf("seeding state from task graph: %w", err)
	}

	wt := worktree.New(repoDir, cfg.Worktree, nil)
	if err := wt.EnsureBase(ctx, feature, opts.defaultBranch); err != nil {
		return fmt.Errorf("ensuring base branch: %w", err)
	}

	backendKind := launcher.SelectBackend(
		launcher.Backend(cfg.Launcher.Backend),
		repoDir,
		containerdReachable(cfg.Launcher.ContainerdSocket),
		false,
	)

	var lnch launcher.Launcher
	switch backendKind {
	case launcher.Container:
		cb, err := launcher.NewContainerBackend(cfg.Launcher.ContainerdSocket, cfg.Launcher.ContainerImage)
		if err != nil {
			return fmt.Errorf("starting container backend: %w", err)
		}
		lnch = cb
	default:
		lnch = launcher.NewProcessBackend(cfg.Launcher.WorkerBinary, cfg.Launcher.UsePTY, cfg.Launcher.TerminateGrace())
	}

	cache := gate.NewCache(cfg.GateCache.FreshnessWindow())
	pipeline := gate.NewPipeline(nil, cache, filepath.Join(repoDir, cfg.LogDir, "gates"), g.Version)
	coordinator := merge.New(repoDir, wt, nil, pipeline, cfg.Gates)

	escalations := escalation.New(cfg.EscalationsPath(feature))

	var rec *metrics.Recorder
	if cfg.MetricsAddr != "" {
		rec = metrics.New()
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr); err != nil && ctx.Err() == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics server stopped: %v\n", err)
			}
		}()
	}

	fileLog, err := logger.NewFileLogger(filepath.Join(repoDir, cfg.LogDir), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("opening file logger: %w", err)
	}
	defer fileLog.Close()

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	combinedLog := &multiLogger{console: consoleLog, file: fileLog}

	orch := orchestrator.New(cfg, feature, repoDir, g, orchestrator.Deps{
		Store:       store,
		Worktree:    wt,
		Launcher:    lnch,
		Coordinator: coordinator,
		Escalations: escalations,
		Metrics:     rec,
		Logger:      combinedLog,
	})
	orch.SetForce(opts.force)

	start := time.Now()
	runErr := orch.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "run finished in %s\n", time.Since(start).Round(time.Second))
	return runErr
}

// defaultFeatureName derives a stable feature identifier from the task
// graph's filename when the operator does not pass --feature.
func defaultFeatureName(graphPath string) string {
	base := filepath.Base(graphPath)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

func containerdReachable(socketPath string) bool {
	if socketPath == "" {
		return false
	}
	info, err := os.Stat(socketPath)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

// multiLogger implements orchestrator.Logger by forwarding to a console
// logger for operator-facing output and a file logger for the durable
// JSONL event trail, mirroring the console+file dual-sink convention.
type multiLogger struct {
	console *logger.ConsoleLogger
	file    *logger.FileLogger
}

func (m *multiLogger) LevelStarted(level, taskCount int) {
	m.console.LevelStarted(level, taskCount)
	m.file.Event("info", "level_started", fmt.Sprintf("level %d started with %d task(s)", level, taskCount), "", 0, level)
}

func (m *multiLogger) TaskAssigned(workerID int, taskID string) {
	m.console.TaskAssigned(workerID, taskID)
	m.file.Event("info", "task_assigned", "task assigned", taskID, workerID, 0)
}

func (m *multiLogger) TaskCompleted(taskID, status string) {
	m.console.TaskCompleted(taskID, status)
	m.file.Event("info", "task_completed", status, taskID, 0, 0)
}

func (m *multiLogger) WorkerStalled(workerID int, cause string) {
	m.console.WorkerStalled(workerID, cause)
	m.file.Event("warn", "worker_stalled", cause, "", workerID, 0)
}

func (m *multiLogger) Escalated(taskID, category, message string) {
	m.console.Escalated(taskID, category, message)
	m.file.Event("error", "escalated", message, taskID, 0, 0)
}

func (m *multiLogger) GateResult(level int, gateName, outcome string) {
	m.console.GateResult(level, gateName, outcome)
	m.file.Event("info", "gate_result", fmt.Sprintf("%s: %s", gateName, outcome), "", 0, level)
}

func (m *multiLogger) LevelMerged(level int, commit string) {
	m.console.LevelMerged(level, commit)
	m.file.Event("info", "level_merged", commit, "", 0, level)
}

func (m *multiLogger) LevelFailed(level int, reason string) {
	m.console.LevelFailed(level, reason)
	m.file.Event("error", "level_failed", reason, "", 0, level)
}

func (m *multiLogger) Info(msg string) {
	m.console.Info(msg)
	m.file.Event("info", "info", msg, "", 0, 0)
}

func (m *multiLogger) Warn(msg string) {
	m.console.Warn(msg)
	m.file.Event("warn", "warn", msg, "", 0, 0)
}

func (m *multiLogger) Error(msg string) {
	m.console.Error(msg)
	m.file.Event("error", "error", msg, "", 0, 0)
}
