// Package gate implements the quality-gate pipeline and fingerprint cache
// of §4.10: an ordered sequence of opaque shell commands run against a
// merge candidate tree, with required/non-required blocking semantics
// and a TTL-freshness result cache keyed by (tree, command, config
// version).
package gate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/models"
)

// Runner abstracts gate command execution for testability.
type Runner interface {
	// Run executes command (a shell-style string, e.g. "go test ./...")
	// in dir, bounded by ctx's deadline, and returns stdout, stderr, and
	// the process's exit code. A non-nil err other than *exec.ExitError
	// indicates the gate itself could not be started or timed out.
	Run(ctx context.Context, dir, command string) (stdout, stderr string, exitCode int, err error)
}

// ShellRunner runs gate commands through "sh -c", matching the reference
// implementation's shelling-out convention for opaque verification
// commands.
type ShellRunner struct{}

// Run implements Runner.
func (ShellRunner) Run(ctx context.Context, dir, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), -1, context.DeadlineExceeded
	}
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	return stdout.String(), stderr.String(), -1, err
}

// Pipeline executes an ordered list of gates against a merge candidate,
// serializing duplicate work per fingerprint and reusing cached results
// within their freshness window.
type Pipeline struct {
	runner  Runner
	cache   *Cache
	logDir  string
	version string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline creates a Pipeline. logDir is where captured gate
// stdout/stderr are written, one file pair per fingerprint. version is
// the gate config version folded into every fingerprint, letting an
// operator invalidate the whole cache by bumping it.
func NewPipeline(runner Runner, cache *Cache, logDir, version string) *Pipeline {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Pipeline{runner: runner, cache: cache, logDir: logDir, version: version, locks: make(map[string]*sync.Mutex)}
}

// Result is the outcome of running the full pipeline once.
type Result struct {
	GateResults []models.GateResult
	Passed      bool // true iff no required gate was Blocking()
}

// Run executes gates in order against dir (a checkout of the merge
// candidate tree identified by treeHash), stopping early at the first
// required gate that blocks (§4.10: "early failures short-circuit the
// remainder").
func (p *Pipeline) Run(ctx context.Context, level int, dir, treeHash string, gates []config.GateDefinition) Result {
	var results []models.GateResult
	for _, g := range gates {
		r := p.runOne(ctx, level, dir, treeHash, g)
		results = append(results, r)
		if g.Required && r.Blocking() {
			return Result{GateResults: results, Passed: false}
		}
	}
	return Result{GateResults: results, Passed: true}
}

func (p *Pipeline) runOne(ctx context.Context, level int, dir, treeHash string, g config.GateDefinition) models.GateResult {
	fp := Fingerprint(treeHash, g.Command, p.version)

	unlock := p.lockFingerprint(fp)
	defer unlock()

	if cached, ok := p.cache.Get(fp, time.Now()); ok {
		return cached
	}

	r := p.execute(ctx, level, dir, fp, g)
	p.cache.Set(r)
	return r
}

// lockFingerprint returns an unlock func after acquiring a per-fingerprint
// mutex, so two workers never run the same gate for the same fingerprint
// concurrently (§4.10).
func (p *Pipeline) lockFingerprint(fp string) func() {
	p.mu.Lock()
	l, ok := p.locks[fp]
	if !ok {
		l = &sync.Mutex{}
		p.locks[fp] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (p *Pipeline) execute(ctx context.Context, level int, dir, fp string, g config.GateDefinition) models.GateResult {
	timeout := time.Duration(g.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := p.runner.Run(runCtx, dir, g.Command)

	outcome := classify(exitCode, err)

	r := models.GateResult{
		Level:       level,
		Gate:        g.Name,
		Fingerprint: fp,
		Outcome:     outcome,
		ExitCode:    exitCode,
		Timestamp:   time.Now(),
	}

	if p.logDir != "" {
		if path, werr := p.writeLog(fp, g.Name, "stdout", stdout); werr == nil {
			r.StdoutPath = path
		}
		if path, werr := p.writeLog(fp, g.Name, "stderr", stderr); werr == nil {
			r.StderrPath = path
		}
	}

	return r
}

// classify maps a gate's raw outcome to one of the §4.10 result kinds.
func classify(exitCode int, err error) string {
	switch {
	case err == context.DeadlineExceeded:
		return models.GateTimeout
	case err != nil:
		return models.GateError
	case exitCode == 0:
		return models.GatePass
	default:
		return models.GateFail
	}
}

func (p *Pipeline) writeLog(fingerprint, gate, stream, content string) (string, error) {
	if err := os.MkdirAll(p.logDir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s-%s.log", gate, fingerprint, stream)
	path := filepath.Join(p.logDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}
