// Package orchestrator wires the TaskGraph, LevelController, Scheduler,
// WorkerLauncher, HeartbeatMonitor, MergeCoordinator, StateStore, and
// Escalation store into the single cooperative event loop described in
// §2 and §5: one logical lock around scheduling decisions, with
// concurrent I/O fan-out (worker spawns, heartbeat reads, gate
// execution) happening underneath it. Grounded on
// internal/executor/orchestrator.go's ExecutePlan top-level driver,
// regeared from wave-by-wave single-pass execution to the spec's
// explicit level state machine.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/escalation"
	"github.com/thedataengineer/mahabharatha/internal/graph"
	"github.com/thedataengineer/mahabharatha/internal/heartbeat"
	"github.com/thedataengineer/mahabharatha/internal/launcher"
	"github.com/thedataengineer/mahabharatha/internal/levelcontroller"
	"github.com/thedataengineer/mahabharatha/internal/merge"
	"github.com/thedataengineer/mahabharatha/internal/metrics"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/thedataengineer/mahabharatha/internal/portalloc"
	"github.com/thedataengineer/mahabharatha/internal/scheduler"
	"github.com/thedataengineer/mahabharatha/internal/statestore"
	"github.com/thedataengineer/mahabharatha/internal/worktree"
	"golang.org/x/time/rate"
)

// Logger is the narrative-event sink the event loop reports to; see
// internal/logger.ConsoleLogger for the concrete implementation.
type Logger interface {
	LevelStarted(level, taskCount int)
	TaskAssigned(workerID int, taskID string)
	TaskCompleted(taskID, status string)
	WorkerStalled(workerID int, cause string)
	Escalated(taskID, category, message string)
	GateResult(level int, gate, outcome string)
	LevelMerged(level int, commit string)
	LevelFailed(level int, reason string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type noopLogger struct{}

func (noopLogger) LevelStarted(int, int)          {}
func (noopLogger) TaskAssigned(int, string)       {}
func (noopLogger) TaskCompleted(string, string)   {}
func (noopLogger) WorkerStalled(int, string)      {}
func (noopLogger) Escalated(string, string, string) {}
func (noopLogger) GateResult(int, string, string) {}
func (noopLogger) LevelMerged(int, string)        {}
func (noopLogger) LevelFailed(int, string)        {}
func (noopLogger) Info(string)                    {}
func (noopLogger) Warn(string)                    {}
func (noopLogger) Error(string)                   {}

// Orchestrator drives one feature's execution end to end.
type Orchestrator struct {
	cfg     *config.Config
	feature string
	repoDir string

	graph       *graph.TaskGraph
	store       *statestore.Store
	wt          *worktree.Manager
	launcher    launcher.Launcher
	monitor     *heartbeat.Monitor
	retry       *heartbeat.Policy
	pacer       *heartbeat.RelaunchPacer
	ports       *portalloc.Allocator
	coordinator *merge.Coordinator
	escalations *escalation.Store
	metrics     *metrics.Recorder
	log         Logger
	force       bool

	nextWorkerID int
	workerPorts  map[int]int
}

// Deps bundles everything New needs beyond config/feature/graph, so
// callers (tests, the CLI) can substitute fakes for the Launcher,
// merge.Runner, and gate.Runner without the Orchestrator constructor
// growing an ever-longer parameter list.
type Deps struct {
	Store       *statestore.Store
	Worktree    *worktree.Manager
	Launcher    launcher.Launcher
	Coordinator *merge.Coordinator
	Escalations *escalation.Store
	Metrics     *metrics.Recorder // nil disables metrics recording
	Logger      Logger            // nil uses a no-op logger
}

// New creates an Orchestrator ready to drive feature's task graph g.
func New(cfg *config.Config, feature, repoDir string, g *graph.TaskGraph, deps Deps) *Orchestrator {
	lg := deps.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Orchestrator{
		cfg:         cfg,
		feature:     feature,
		repoDir:     repoDir,
		graph:       g,
		store:       deps.Store,
		wt:          deps.Worktree,
		launcher:    deps.Launcher,
		monitor:     heartbeat.New(cfg.Heartbeat, func(id int) string { return cfg.HeartbeatPath(id) }),
		retry:       heartbeat.NewPolicy(cfg.Retry),
		pacer:       heartbeat.NewRelaunchPacer(time.Duration(cfg.Retry.BaseBackoffMS)*time.Millisecond, cfg.Scheduler.MaxConcurrency),
		ports:       portalloc.New(cfg.Launcher.PortRangeStart, cfg.Launcher.PortRangeEnd, portCooldown(cfg.Retry), cfg.Scheduler.MaxConcurrency),
		coordinator: deps.Coordinator,
		escalations: deps.Escalations,
		metrics:     deps.Metrics,
		log:         lg,
		force:       false,
		workerPorts: make(map[int]int),
	}
}

// SetForce enables the operator override that allows a level with a
// blocked task to merge anyway (§4.8).
func (o *Orchestrator) SetForce(force bool) { o.force = force }

// Run drives the feature from its current level (resuming from whatever
// the StateStore already has, per §5's incremental-resume requirement)
// through to the last level, or until a level fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	state, err := o.store.Load()
	if err != nil {
		return fmt.Errorf("orchestrator: loading state: %w", err)
	}

	if err := o.wt.EnsureBase(ctx, o.feature, "main"); err != nil {
		return fmt.Errorf("orchestrator: ensuring base branch: %w", err)
	}

	for {
		state, err = o.store.Load()
		if err != nil {
			return err
		}
		lvl := state.LevelByNumber(state.CurrentLevel)
		if lvl == nil {
			o.log.Info("all levels complete")
			return nil
		}

		if err := o.runLevel(ctx, lvl.Number); err != nil {
			return err
		}

		state, err = o.store.Load()
		if err != nil {
			return err
		}
		lvl = state.LevelByNumber(lvl.Number)
		if lvl.Status == models.LevelFailed {
			return fmt.Errorf("orchestrator: level %d failed: %s", lvl.Number, lvl.Merge.FailReason)
		}

		if err := o.store.Update(func(s *models.FeatureState) error {
			s.CurrentLevel = lvl.Number + 1
			return nil
		}); err != nil {
			return err
		}
	}
}

// runLevel drives one level from pending through complete/failed,
// ticking the scheduler/launcher/heartbeat loop until the level is ready
// to merge, then handing off to the MergeCoordinator.
func (o *Orchestrator) runLevel(ctx context.Context, n int) error {
	ctl := levelcontroller.New(o.force)

	state, err := o.store.Update(func(s *models.FeatureState) error {
		return ctl.Start(s, n)
	})
	if err != nil {
		return err
	}
	lvl := state.LevelByNumber(n)
	if lvl.Status == models.LevelComplete {
		return nil // empty level, already fast-pathed by Start
	}
	o.log.LevelStarted(n, len(lvl.TaskIDs))

	ticker := time.NewTicker(o.cfg.Heartbeat.PollInterval())
	defer ticker.Stop()

	for {
		state, err = o.store.Load()
		if err != nil {
			return err
		}
		lvl = state.LevelByNumber(n)

		if err := o.reconcileWorkers(ctx, state); err != nil {
			return err
		}

		state, err = o.store.Load()
		if err != nil {
			return err
		}
		lvl = state.LevelByNumber(n)

		if err := o.dispatchReady(ctx, state, lvl); err != nil {
			return err
		}

		state, err = o.store.Load()
		if err != nil {
			return err
		}
		lvl = state.LevelByNumber(n)

		ready, err := ctl.ReadyToMerge(state, n)
		if err != nil {
			return err
		}
		if ready {
			return o.mergeLevel(ctx, ctl, state, n)
		}

		if lvl.HasBlocked(state.Tasks) && !o.force && !levelcontroller.WorkerBusyOn(state, lvl) {
			_, err := o.store.Update(func(s *models.FeatureState) error {
				return ctl.FailRunning(s, n)
			})
			if err != nil {
				return err
			}
			o.log.LevelFailed(n, "blocked task without operator override")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatchReady computes the ready set for level n and assigns idle
// workers to it via the scheduler, spawning new workers as needed.
func (o *Orchestrator) dispatchReady(ctx context.Context, state *models.FeatureState, lvl *models.Level) error {
	completed := map[string]bool{}
	for id, t := range state.Tasks {
		if t.Status == models.TaskCompleted {
			completed[id] = true
		}
	}

	ready := map[string]bool{}
	for _, id := range lvl.TaskIDs {
		t := state.Tasks[id]
		if t.Status == models.TaskPending && t.IsReady(completed) {
			ready[id] = true
		}
	}
	if len(ready) == 0 {
		return nil
	}

	inFlight := map[string]bool{}
	idle := []int{}
	busyByWorker := map[int]bool{}
	for id, w := range state.Workers {
		if w.CurrentTaskID != "" {
			inFlight[w.CurrentTaskID] = true
			busyByWorker[id] = true
		}
	}
	for i := 0; i < o.cfg.Scheduler.MaxConcurrency; i++ {
		wid := i + 1
		if !busyByWorker[wid] {
			idle = append(idle, wid)
		}
	}

	assignments := scheduler.Next(o.graph, ready, idle, inFlight)
	for _, a := range assignments {
		if err := o.spawnForAssignment(ctx, a); err != nil {
			return err
		}
		o.log.TaskAssigned(a.WorkerID, a.TaskID)
		if o.metrics != nil {
			o.metrics.TaskDispatched(lvl.Number)
		}
	}
	return nil
}

// spawnForAssignment provisions the worktree/port/worker process for one
// scheduler assignment and records the resulting running state.
func (o *Orchestrator) spawnForAssignment(ctx context.Context, a scheduler.Assignment) error {
	h, err := o.wt.Create(ctx, o.feature, a.WorkerID)
	if err != nil {
		return fmt.Errorf("orchestrator: provisioning worktree for worker %d: %w", a.WorkerID, err)
	}

	port, ok := o.workerPorts[a.WorkerID]
	if !ok {
		p, err := o.ports.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("orchestrator: acquiring port for worker %d: %w", a.WorkerID, err)
		}
		o.workerPorts[a.WorkerID] = p
		port = p
	}

	spec := launcher.SpawnSpec{
		WorkerID:     a.WorkerID,
		Feature:      o.feature,
		Branch:       h.Branch,
		WorktreePath: h.Path,
		StateDir:     o.cfg.StateDir,
		Port:         port,
	}
	if _, err := o.launcher.Spawn(ctx, spec); err != nil {
		return fmt.Errorf("orchestrator: spawning worker %d: %w", a.WorkerID, err)
	}

	// Seed the worker's heartbeat file before the first poll tick. Without
	// this, Heartbeat.Stalled sees a zero Timestamp (no file written yet)
	// and reports the worker stalled on the very next tick, regardless of
	// stall_timeout.
	seed := models.Heartbeat{WorkerID: a.WorkerID, Timestamp: time.Now(), TaskID: a.TaskID}
	if err := heartbeat.WriteHeartbeat(o.cfg.HeartbeatPath(a.WorkerID), seed); err != nil {
		return fmt.Errorf("orchestrator: seeding heartbeat for worker %d: %w", a.WorkerID, err)
	}

	_, err = o.store.Update(func(s *models.FeatureState) error {
		t, ok := s.Tasks[a.TaskID]
		if !ok {
			return fmt.Errorf("orchestrator: unknown task %s", a.TaskID)
		}
		t.Status = models.TaskRunning
		now := time.Now()
		t.StartedAt = &now
		t.Attempts++
		t.WorkerID = a.WorkerID

		w, ok := s.Workers[a.WorkerID]
		if !ok {
			w = &models.Worker{ID: a.WorkerID}
			s.Workers[a.WorkerID] = w
		}
		w.Status = models.WorkerRunning
		w.CurrentTaskID = a.TaskID
		w.Branch = h.Branch
		w.WorktreePath = h.Path
		w.Port = port
		w.LastHeartbeatTS = time.Now()
		s.AppendEvent("task_started", a.TaskID)
		return nil
	})
	return err
}

// reconcileWorkers polls every busy worker's launcher/heartbeat status
// and applies the retry/escalation policy to anything that stalled or
// crashed. Workers the launcher reports as stopped or checkpointing are
// left to their own state writes.
func (o *Orchestrator) reconcileWorkers(ctx context.Context, state *models.FeatureState) error {
	for id, w := range state.Workers {
		if w.CurrentTaskID == "" {
			continue
		}
		task := state.Tasks[w.CurrentTaskID]
		if task == nil || task.IsTerminal() {
			continue
		}

		status, err := o.launcher.Monitor(ctx, id)
		if err != nil {
			continue // worker already reaped; next tick's dispatch will notice the freed slot
		}

		launcherStatus := heartbeat.LauncherRunning
		if status == launcher.StatusCrashed {
			launcherStatus = heartbeat.LauncherCrashed
		} else if status != launcher.StatusRunning {
			continue // checkpointing/stopped handled by the worker's own state write
		}

		event, err := o.monitor.Check(id, w.CurrentTaskID, launcherStatus, time.Now())
		if err != nil {
			return err
		}
		if event == nil {
			continue
		}

		o.log.WorkerStalled(id, string(event.Cause))
		if o.metrics != nil {
			o.metrics.Stall(string(event.Cause))
		}
		if !event.SkipTerminate {
			_ = o.launcher.Terminate(ctx, id, true)
		}

		if err := o.handleFailure(ctx, id, event); err != nil {
			return err
		}
	}
	return nil
}

// handleFailure applies the retry/escalation decision for a stalled or
// crashed task, per §4.7.
func (o *Orchestrator) handleFailure(ctx context.Context, workerID int, event *heartbeat.StallEvent) error {
	var decision heartbeat.Decision
	newState, err := o.store.Update(func(s *models.FeatureState) error {
		t := s.Tasks[event.TaskID]
		w := s.Workers[workerID]
		w.CurrentTaskID = ""
		w.Status = models.WorkerStopped

		decision = o.retry.Decide(event.Cause, t.Attempts)
		if decision.Retry {
			t.Status = models.TaskPending
			s.AppendEvent("task_failed", fmt.Sprintf("%s: %s (retrying)", event.TaskID, event.Cause))
		} else {
			t.Status = models.TaskBlocked
			s.AppendEvent("task_failed", fmt.Sprintf("%s: %s", event.TaskID, event.Cause))
		}
		return nil
	})
	if err != nil {
		return err
	}
	task := newState.Tasks[event.TaskID]
	o.log.TaskCompleted(event.TaskID, task.Status)
	if o.metrics != nil {
		o.metrics.TaskCompleted(task.Status)
	}

	if decision.Escalate {
		e, err := o.escalations.Append(workerID, event.TaskID, string(event.Cause), "worker failure not automatically retryable", "")
		if err != nil {
			return err
		}
		o.log.Escalated(event.TaskID, e.Category, e.Message)
		if o.metrics != nil {
			o.metrics.Escalation(e.Category)
		}
	} else if decision.Retry {
		if err := o.pacer.Wait(ctx); err != nil {
			return err
		}
		time.Sleep(decision.Backoff)
	}
	return nil
}

// mergeLevel hands a drained level to the MergeCoordinator and applies
// its outcome to the level state machine.
func (o *Orchestrator) mergeLevel(ctx context.Context, ctl *levelcontroller.Controller, state *models.FeatureState, n int) error {
	if _, err := o.store.Update(func(s *models.FeatureState) error {
		return ctl.BeginMerge(s, n)
	}); err != nil {
		return err
	}

	var contributions []merge.Contribution
	lvl := state.LevelByNumber(n)
	seen := map[int]bool{}
	for _, id := range lvl.TaskIDs {
		t := state.Tasks[id]
		if t.Status != models.TaskCompleted {
			continue
		}
		w, ok := state.Workers[t.WorkerID]
		if !ok || w.Branch == "" || seen[t.WorkerID] {
			continue
		}
		contributions = append(contributions, merge.Contribution{WorkerID: t.WorkerID, Branch: w.Branch})
		seen[t.WorkerID] = true
	}

	outcome, err := o.coordinator.Merge(ctx, o.feature, n, contributions)
	if err != nil {
		reason := err.Error()
		if _, uerr := o.store.Update(func(s *models.FeatureState) error {
			return ctl.FailMerge(s, n, reason)
		}); uerr != nil {
			return uerr
		}
		o.log.LevelFailed(n, reason)
		return nil
	}

	for _, gr := range outcome.GateResults {
		o.log.GateResult(n, gr.Gate, gr.Outcome)
		if o.metrics != nil {
			o.metrics.GateRun(gr.Gate, gr.Outcome, 0)
		}
	}

	if _, err := o.store.Update(func(s *models.FeatureState) error {
		return ctl.CompleteMerge(s, n, outcome)
	}); err != nil {
		return err
	}
	o.log.LevelMerged(n, outcome.CommitID)
	return nil
}

// Seed populates a freshly-Init'd FeatureState with the levels and tasks
// derived from g, so the event loop in Run has something to schedule.
// It is idempotent: a state that already has levels (a resumed run) is
// left untouched, matching §8's incremental-resume requirement.
func Seed(store *statestore.Store, g *graph.TaskGraph) (*models.FeatureState, error) {
	return store.Update(func(s *models.FeatureState) error {
		if len(s.Levels) > 0 {
			return nil
		}

		levelNums := make([]int, 0, len(g.Levels))
		for n := range g.Levels {
			levelNums = append(levelNums, n)
		}
		sort.Ints(levelNums)

		for _, n := range levelNums {
			ids := append([]string(nil), g.Levels[n]...)
			sort.Strings(ids)
			status := models.LevelPending
			s.Levels = append(s.Levels, &models.Level{
				Number:  n,
				Status:  status,
				TaskIDs: ids,
			})
			for _, id := range ids {
				t := *g.Tasks[id]
				t.Status = models.TaskPending
				s.Tasks[id] = &t
			}
		}
		if len(s.Levels) > 0 {
			s.CurrentLevel = s.Levels[0].Number
		}
		return nil
	})
}

// portCooldown derives the port allocator's re-acquisition cooldown from
// the retry policy's base backoff, so a port freed by a failing worker
// isn't handed straight back out to its replacement.
func portCooldown(cfg config.RetryConfig) rate.Limit {
	ms := cfg.BaseBackoffMS
	if ms <= 0 {
		ms = 1000
	}
	return rate.Every(time.Duration(ms) * time.Millisecond)
}
