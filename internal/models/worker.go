package models

import "time"

// Worker status values.
const (
	WorkerInitializing  = "initializing"
	WorkerRunning       = "running"
	WorkerVerifying     = "verifying"
	WorkerIdle          = "idle"
	WorkerCheckpointing = "checkpointing"
	WorkerStopped       = "stopped"
	WorkerCrashed       = "crashed"
)

// Worker is the orchestrator's view of one external process or container
// executing tasks on a dedicated working copy and branch. The Launcher
// owns the underlying OS handle; this struct is the StateStore-visible
// record of it.
type Worker struct {
	ID              int       `json:"id" yaml:"id"`
	Status          string    `json:"status" yaml:"status"`
	CurrentTaskID   string    `json:"current_task_id,omitempty" yaml:"current_task_id,omitempty"`
	Branch          string    `json:"branch" yaml:"branch"`
	WorktreePath    string    `json:"worktree_path" yaml:"worktree_path"`
	Port            int       `json:"port,omitempty" yaml:"port,omitempty"`
	LastHeartbeatTS time.Time `json:"last_heartbeat_ts,omitempty" yaml:"last_heartbeat_ts,omitempty"`
	TasksCompleted  int       `json:"tasks_completed" yaml:"tasks_completed"`
	ContextUsage    float64   `json:"context_usage" yaml:"context_usage"`

	// BackendHandle is the backend-specific identifier (pid for
	// ProcessBackend, container id for ContainerBackend). Opaque to
	// everything except the Launcher that produced it.
	BackendHandle string `json:"backend_handle,omitempty" yaml:"backend_handle,omitempty"`
}

// Heartbeat is the small document a worker writes to
// .mahabharatha/state/heartbeat-<id>.json every ~15 seconds.
type Heartbeat struct {
	WorkerID    int       `json:"worker_id"`
	Timestamp   time.Time `json:"ts"`
	TaskID      string    `json:"current_task_id,omitempty"`
	Step        string    `json:"step,omitempty"`
	ProgressPct float64   `json:"progress_fraction"`
}

// Stalled reports whether this heartbeat is older than timeout as of now.
func (h Heartbeat) Stalled(now time.Time, timeout time.Duration) bool {
	if h.Timestamp.IsZero() {
		return true
	}
	return now.Sub(h.Timestamp) > timeout
}
