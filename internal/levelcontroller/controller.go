// Package levelcontroller implements the per-level state machine of §4.8:
// pending -> running -> merging -> (complete | failed).
package levelcontroller

import (
	"fmt"

	"github.com/thedataengineer/mahabharatha/internal/models"
)

// ErrPriorLevelNotComplete is returned by Start when level N-1 has not
// reached complete (§3: "level N is non-pending only after level N-1 is
// complete").
var ErrPriorLevelNotComplete = fmt.Errorf("levelcontroller: prior level not complete")

// Controller advances a single feature's levels through their state
// machine. It holds no state itself beyond the force-override flag;
// the authoritative level/task status lives in the FeatureState.
type Controller struct {
	// Force, when true, allows running -> failed levels with a blocked
	// task to still promote to merging (the "--force" override of §4.8).
	Force bool
}

// New creates a Controller. force corresponds to the operator's
// --force flag.
func New(force bool) *Controller {
	return &Controller{Force: force}
}

// Start transitions level n from pending to running. It requires level
// n-1 (if any) to already be complete; level 1 has no such prerequisite.
func (c *Controller) Start(state *models.FeatureState, n int) error {
	if n > 1 {
		prev := state.LevelByNumber(n - 1)
		if prev == nil || prev.Status != models.LevelComplete {
			return ErrPriorLevelNotComplete
		}
	}
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return fmt.Errorf("levelcontroller: level %d not found", n)
	}
	if lvl.Status != models.LevelPending {
		return fmt.Errorf("levelcontroller: level %d is %s, want pending", n, lvl.Status)
	}

	// A zero-task level transitions directly to complete: no merge is
	// needed and no tag is skipped in the chain (§8 boundary behavior).
	if len(lvl.TaskIDs) == 0 {
		lvl.Status = models.LevelComplete
		state.AppendEvent("level_complete", fmt.Sprintf("level %d has no tasks, skipping merge", n))
		return nil
	}

	lvl.Status = models.LevelRunning
	state.CurrentLevel = n
	return nil
}

// WorkerBusyOn reports whether any worker is still running or verifying
// a task belonging to level n, used by ReadyToMerge's second gate.
func WorkerBusyOn(state *models.FeatureState, lvl *models.Level) bool {
	inLevel := make(map[string]bool, len(lvl.TaskIDs))
	for _, id := range lvl.TaskIDs {
		inLevel[id] = true
	}
	for _, w := range state.Workers {
		if (w.Status == models.WorkerRunning || w.Status == models.WorkerVerifying) && inLevel[w.CurrentTaskID] {
			return true
		}
	}
	return false
}

// ReadyToMerge reports whether level n may transition from running to
// merging: every assigned task is completed or blocked, no worker is
// still active on one of its tasks, and (absent Force) no task remains
// blocked.
func (c *Controller) ReadyToMerge(state *models.FeatureState, n int) (bool, error) {
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return false, fmt.Errorf("levelcontroller: level %d not found", n)
	}
	if lvl.Status != models.LevelRunning {
		return false, nil
	}
	if !lvl.AllTasksTerminal(state.Tasks) {
		return false, nil
	}
	if WorkerBusyOn(state, lvl) {
		return false, nil
	}
	if lvl.HasBlocked(state.Tasks) && !c.Force {
		return false, nil
	}
	return true, nil
}

// BeginMerge transitions level n from running to merging.
func (c *Controller) BeginMerge(state *models.FeatureState, n int) error {
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return fmt.Errorf("levelcontroller: level %d not found", n)
	}
	if lvl.Status != models.LevelRunning {
		return fmt.Errorf("levelcontroller: level %d is %s, want running", n, lvl.Status)
	}
	lvl.Status = models.LevelMerging
	return nil
}

// CompleteMerge transitions level n from merging to complete and records
// the merge outcome. It only updates state; tagging the repository is the
// caller's responsibility.
func (c *Controller) CompleteMerge(state *models.FeatureState, n int, outcome models.MergeOutcome) error {
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return fmt.Errorf("levelcontroller: level %d not found", n)
	}
	lvl.Status = models.LevelComplete
	lvl.Merge = &outcome
	state.AppendEvent("level_complete", fmt.Sprintf("level %d merged as %s", n, outcome.CommitID))
	return nil
}

// FailMerge transitions level n from running or merging to failed,
// recording the failure reason but leaving the rest of state intact for
// diagnostics (§4.8: "terminal failed ... leaves state intact").
func (c *Controller) FailMerge(state *models.FeatureState, n int, reason string) error {
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return fmt.Errorf("levelcontroller: level %d not found", n)
	}
	lvl.Status = models.LevelFailed
	lvl.Merge = &models.MergeOutcome{FailReason: reason}
	state.AppendEvent("level_failed", fmt.Sprintf("level %d failed: %s", n, reason))
	return nil
}

// FailRunning transitions a running level straight to failed, used when
// a task is blocked and --force was not set (§4.8: "running -> failed
// when any task is blocked and the --force override is not set").
func (c *Controller) FailRunning(state *models.FeatureState, n int) error {
	lvl := state.LevelByNumber(n)
	if lvl == nil {
		return fmt.Errorf("levelcontroller: level %d not found", n)
	}
	if lvl.Status != models.LevelRunning {
		return fmt.Errorf("levelcontroller: level %d is %s, want running", n, lvl.Status)
	}
	if !lvl.HasBlocked(state.Tasks) {
		return fmt.Errorf("levelcontroller: level %d has no blocked task", n)
	}
	if c.Force {
		return fmt.Errorf("levelcontroller: force override set, level should merge instead of fail")
	}
	return c.FailMerge(state, n, "task blocked without --force override")
}
