// Package heartbeat distinguishes "worker is slow" from "worker is
// stuck" (§4.5) and implements the retry/backoff/escalation policy of
// §4.7.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/filelock"
	"github.com/thedataengineer/mahabharatha/internal/models"
)

// Cause enumerates why a task failed, driving the retry table of §4.7.
type Cause string

const (
	CauseVerificationFailed  Cause = "verification_failed"
	CauseVerificationTimeout Cause = "verification_timeout"
	CauseStall               Cause = "stall"
	CauseCrash               Cause = "crash"
	CauseAmbiguousSpec       Cause = "ambiguous_spec"
	CauseMissingDependency   Cause = "missing_dependency"
	CauseMergeConflict       Cause = "merge_conflict"
)

// Retryable reports whether this cause is retried automatically rather
// than escalated, per the table in §4.7. An unrecognized cause defaults
// to verification_failed semantics (retryable), per the spec §9 open
// question on ambiguous classification.
func (c Cause) Retryable() bool {
	switch c {
	case CauseAmbiguousSpec, CauseMissingDependency, CauseMergeConflict:
		return false
	default:
		return true
	}
}

// ReadHeartbeat loads a worker's heartbeat document, returning a zero
// Heartbeat (which Stalled always reports as stalled) if the file is
// absent, e.g. before the worker's first write.
func ReadHeartbeat(path string) (models.Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Heartbeat{}, nil
		}
		return models.Heartbeat{}, fmt.Errorf("heartbeat: reading %s: %w", path, err)
	}
	var hb models.Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return models.Heartbeat{}, fmt.Errorf("heartbeat: parsing %s: %w", path, err)
	}
	return hb, nil
}

// WriteHeartbeat atomically writes a worker's heartbeat document; called
// by the worker process itself, not the orchestrator, but kept here so
// both sides share one wire format.
func WriteHeartbeat(path string, hb models.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("heartbeat: marshaling: %w", err)
	}
	return filelock.AtomicWrite(path, data)
}

// LauncherStatus is the subset of launcher.WorkerStatus the monitor
// needs, kept as a string to avoid an import cycle with the launcher
// package (which does not depend on heartbeat).
type LauncherStatus string

const (
	LauncherRunning LauncherStatus = "running"
	LauncherCrashed LauncherStatus = "crashed"
)

// StallEvent describes one detected stall or crash for the caller to act
// on (failing the task, terminating the worker, enqueuing a retry).
type StallEvent struct {
	WorkerID int
	TaskID   string
	Cause    Cause
	// SkipTerminate is true for launcher-reported crashes, which the
	// launcher has already reaped (§4.5: "skipping the termination
	// step").
	SkipTerminate bool
}

// Monitor polls per-worker heartbeat files against a stall timeout.
type Monitor struct {
	cfg      config.HeartbeatConfig
	heartbeatPath func(workerID int) string
}

// New creates a Monitor using cfg's timeout/interval and pathFn to
// locate a worker's heartbeat file.
func New(cfg config.HeartbeatConfig, pathFn func(workerID int) string) *Monitor {
	return &Monitor{cfg: cfg, heartbeatPath: pathFn}
}

// Check evaluates one worker: if the launcher reports it crashed, that
// is surfaced directly (skipping termination, since the launcher has
// already reaped the process); if the launcher reports it running but
// its heartbeat is older than the configured stall timeout, a stall is
// reported. Returns nil if the worker looks healthy.
func (m *Monitor) Check(workerID int, taskID string, launcherStatus LauncherStatus, now time.Time) (*StallEvent, error) {
	if launcherStatus == LauncherCrashed {
		return &StallEvent{WorkerID: workerID, TaskID: taskID, Cause: CauseCrash, SkipTerminate: true}, nil
	}
	if launcherStatus != LauncherRunning {
		return nil, nil
	}

	hb, err := ReadHeartbeat(m.heartbeatPath(workerID))
	if err != nil {
		return nil, err
	}
	if hb.Stalled(now, m.cfg.StallTimeout()) {
		return &StallEvent{WorkerID: workerID, TaskID: taskID, Cause: CauseStall}, nil
	}
	return nil, nil
}
