package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// processHandle tracks one spawned worker process.
type processHandle struct {
	cmd    *exec.Cmd
	stdout *lineBuffer
	ptyF   *os.File
}

// ProcessBackend spawns workers as OS subprocesses of worker binary,
// grounded in the reference implementation's Invoker (exec.CommandContext,
// stdout/stderr capture, exit-code interpretation).
type ProcessBackend struct {
	Binary    string
	UsePTY    bool
	GraceWait time.Duration

	mu      sync.Mutex
	workers map[int]*processHandle
}

// NewProcessBackend creates a ProcessBackend that spawns `binary`.
func NewProcessBackend(binary string, usePTY bool, grace time.Duration) *ProcessBackend {
	return &ProcessBackend{
		Binary:    binary,
		UsePTY:    usePTY,
		GraceWait: grace,
		workers:   make(map[int]*processHandle),
	}
}

// Spawn starts the worker binary with WORKER_ID/FEATURE/BRANCH/STATE_DIR
// in its environment and its cwd set to the worktree path (§6).
func (p *ProcessBackend) Spawn(ctx context.Context, spec SpawnSpec) (*SpawnResult, error) {
	cmd := exec.Command(p.Binary)
	cmd.Dir = spec.WorktreePath
	cmd.Env = append(os.Environ(),
		"WORKER_ID="+strconv.Itoa(spec.WorkerID),
		"FEATURE="+spec.Feature,
		"BRANCH="+spec.Branch,
		"STATE_DIR="+spec.StateDir,
	)
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// New process group so Terminate can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	buf := newLineBuffer()
	handle := &processHandle{cmd: cmd, stdout: buf}

	var err error
	if p.UsePTY {
		var f *os.File
		f, err = pty.Start(cmd)
		if err == nil {
			handle.ptyF = f
			go buf.drain(f)
		}
	} else {
		cmd.Stdout = buf
		cmd.Stderr = buf
		err = cmd.Start()
	}
	if err != nil {
		return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: err.Error()}
	}
	if cmd.Process == nil {
		return nil, &LaunchFailedError{WorkerID: spec.WorkerID, Reason: "process did not start"}
	}

	p.mu.Lock()
	p.workers[spec.WorkerID] = handle
	p.mu.Unlock()

	return &SpawnResult{WorkerID: spec.WorkerID, BackendHandle: strconv.Itoa(cmd.Process.Pid)}, nil
}

// Monitor maps exit status to WorkerStatus per §4.4: running while
// alive; exit 0 -> stopped; exit 2 -> checkpointing; any other nonzero
// -> crashed.
func (p *ProcessBackend) Monitor(ctx context.Context, workerID int) (WorkerStatus, error) {
	h, err := p.get(workerID)
	if err != nil {
		return "", err
	}

	if h.cmd.ProcessState == nil {
		// Process hasn't been reaped yet; poll without blocking using a
		// zero-signal check.
		if err := h.cmd.Process.Signal(syscall.Signal(0)); err != nil {
			return StatusCrashed, nil
		}
		return StatusRunning, nil
	}

	switch code := h.cmd.ProcessState.ExitCode(); code {
	case 0:
		return StatusStopped, nil
	case 2:
		return StatusCheckpointing, nil
	default:
		return StatusCrashed, nil
	}
}

// Terminate sends a graceful SIGTERM, waits up to GraceWait, then
// escalates to SIGKILL. The force path skips straight to SIGKILL.
func (p *ProcessBackend) Terminate(ctx context.Context, workerID int, force bool) error {
	h, err := p.get(workerID)
	if err != nil {
		return err
	}
	pgid := h.cmd.Process.Pid

	if !force {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			_, _ = h.cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.remove(workerID)
			return nil
		case <-time.After(p.GraceWait):
			// fall through to force kill
		}
	}

	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	_, _ = h.cmd.Process.Wait()
	if h.ptyF != nil {
		_ = h.ptyF.Close()
	}
	p.remove(workerID)
	return nil
}

// GetOutput returns the tail of the worker's captured stdout/stderr.
func (p *ProcessBackend) GetOutput(workerID int, tail int) ([]string, error) {
	h, err := p.get(workerID)
	if err != nil {
		return nil, err
	}
	return h.stdout.tailLines(tail), nil
}

func (p *ProcessBackend) get(workerID int) (*processHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorker, workerID)
	}
	return h, nil
}

func (p *ProcessBackend) remove(workerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, workerID)
}

// lineBuffer is a small thread-safe ring of captured output lines.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
	cur   bytes.Buffer
}

func newLineBuffer() *lineBuffer { return &lineBuffer{} }

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range p {
		if c == '\n' {
			b.lines = append(b.lines, b.cur.String())
			b.cur.Reset()
			continue
		}
		b.cur.WriteByte(c)
	}
	return len(p), nil
}

func (b *lineBuffer) drain(f *os.File) {
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			_, _ = b.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (b *lineBuffer) tailLines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}
