// Package launcher provides the polymorphic WorkerLauncher interface and
// its ProcessBackend and ContainerBackend implementations (§4.4).
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// WorkerStatus mirrors the observable worker lifecycle states a backend
// can report, per the monitor() mapping in §4.4.
type WorkerStatus string

const (
	StatusRunning       WorkerStatus = "running"
	StatusStopped       WorkerStatus = "stopped"
	StatusCheckpointing WorkerStatus = "checkpointing"
	StatusCrashed       WorkerStatus = "crashed"
)

// LaunchFailedError is returned by Spawn when a backend could not start a
// worker.
type LaunchFailedError struct {
	WorkerID int
	Reason   string
}

func (e *LaunchFailedError) Error() string {
	return fmt.Sprintf("launch failed for worker %d: %s", e.WorkerID, e.Reason)
}

// ErrUnknownWorker is returned by Monitor/Terminate/GetOutput for a
// worker id the backend never spawned or has already reaped.
var ErrUnknownWorker = errors.New("launcher: unknown worker")

// SpawnSpec carries everything a backend needs to start a worker (§6's
// worker launch contract).
type SpawnSpec struct {
	WorkerID     int
	Feature      string
	Branch       string
	WorktreePath string
	StateDir     string
	Port         int
	Env          map[string]string
}

// SpawnResult is returned once the backend has confirmed the worker is
// actually running.
type SpawnResult struct {
	WorkerID      int
	BackendHandle string // pid (ProcessBackend) or container id (ContainerBackend)
}

// Launcher is the capability set {spawn, monitor, terminate, get_output}
// implemented by each backend. The core never reaches into
// backend-specific state through this interface (§9).
type Launcher interface {
	// Spawn starts a worker bound to spec.WorktreePath and does not
	// return until the backend confirms it is running, or a
	// *LaunchFailedError otherwise.
	Spawn(ctx context.Context, spec SpawnSpec) (*SpawnResult, error)

	// Monitor reports the current backend-observed status of a worker.
	// Idempotent and cheap enough to call once per second.
	Monitor(ctx context.Context, workerID int) (WorkerStatus, error)

	// Terminate stops a worker. The graceful path (force=false) signals
	// a checkpoint (SIGTERM) and waits up to the backend's grace period
	// (ProcessBackend.GraceWait; a fixed 10 seconds in ContainerBackend)
	// before escalating to a forced kill; the force path skips the wait.
	Terminate(ctx context.Context, workerID int, force bool) error

	// GetOutput returns up to the last `tail` lines of the worker's
	// captured stdout/stderr.
	GetOutput(workerID int, tail int) ([]string, error)
}

// Backend selects which concrete Launcher a factory call should return.
type Backend string

const (
	Auto      Backend = "auto"
	Process   Backend = "process"
	Container Backend = "container"
)

// SelectBackend implements the `auto` resolution rule of §4.4: container
// iff a devcontainer definition exists, a container runtime is
// available and healthy, and the worker image is present locally;
// process otherwise.
func SelectBackend(requested Backend, repoDir string, containerdAvailable, imagePresent bool) Backend {
	if requested != Auto {
		return requested
	}
	if hasDevcontainer(repoDir) && containerdAvailable && imagePresent {
		return Container
	}
	return Process
}

func hasDevcontainer(repoDir string) bool {
	for _, candidate := range []string{".devcontainer/devcontainer.json", ".devcontainer.json"} {
		if _, err := os.Stat(repoDir + "/" + candidate); err == nil {
			return true
		}
	}
	return false
}
