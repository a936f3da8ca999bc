// Package worktree provides each worker an isolated working copy of the
// repository plus a dedicated branch derived from a per-feature base
// branch (§4.3).
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thedataengineer/mahabharatha/internal/config"
)

// Runner abstracts command execution for testability, matching the
// reference implementation's CommandRunner convention.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ShellRunner runs commands via os/exec in a fixed working directory.
type ShellRunner struct {
	Dir string
}

// Run executes name with args in r.Dir and returns combined output.
func (r ShellRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Handle is a created or discovered worker worktree.
type Handle struct {
	Path   string
	Branch string
}

// Manager creates, lists, and prunes per-worker worktrees rooted at the
// repository identified by repoDir.
type Manager struct {
	repoDir string
	cfg     config.WorktreeConfig
	runner  Runner
}

// New creates a Manager. repoDir is the root of the git repository the
// feature operates on.
func New(repoDir string, cfg config.WorktreeConfig, runner Runner) *Manager {
	if runner == nil {
		runner = ShellRunner{Dir: repoDir}
	}
	return &Manager{repoDir: repoDir, cfg: cfg, runner: runner}
}

// BaseBranch returns the deterministic base-branch name for a feature
// (§4.3, §6).
func (m *Manager) BaseBranch(feature string) string {
	return fmt.Sprintf("%s/%s/base", m.cfg.BranchPrefix, feature)
}

// StagingBranch returns the deterministic staging-branch name.
func (m *Manager) StagingBranch(feature string) string {
	return fmt.Sprintf("%s/%s/staging", m.cfg.BranchPrefix, feature)
}

// WorkerBranch returns the deterministic per-worker branch name.
func (m *Manager) WorkerBranch(feature string, workerID int) string {
	return fmt.Sprintf("%s/%s/worker-%d", m.cfg.BranchPrefix, feature, workerID)
}

// LevelTag returns the tag name applied to the base branch when level n
// completes.
func (m *Manager) LevelTag(feature string, level int) string {
	return fmt.Sprintf("%s/level-%d-complete", feature, level)
}

// worktreeDir returns the on-disk path for a worker's isolated copy.
func (m *Manager) worktreeDir(feature string, workerID int) string {
	return filepath.Join(m.cfg.Root, fmt.Sprintf("%s-worker-%d", feature, workerID))
}

// EnsureBase creates the feature's base branch, once, from the
// repository's default branch, if it does not already exist.
func (m *Manager) EnsureBase(ctx context.Context, feature, defaultBranch string) error {
	base := m.BaseBranch(feature)
	if m.branchExists(ctx, base) {
		return nil
	}
	if _, err := m.runner.Run(ctx, "git", "branch", base, defaultBranch); err != nil {
		return fmt.Errorf("worktree: creating base branch %s: %w", base, err)
	}
	return nil
}

func (m *Manager) branchExists(ctx context.Context, branch string) bool {
	_, err := m.runner.Run(ctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// Create provisions an isolated working copy and branch for worker_id,
// idempotent for a given (feature, workerID) pair: a second call against
// an already-materialized worktree returns the existing Handle.
func (m *Manager) Create(ctx context.Context, feature string, workerID int) (*Handle, error) {
	path := m.worktreeDir(feature, workerID)
	branch := m.WorkerBranch(feature, workerID)

	if _, err := os.Stat(path); err == nil {
		return &Handle{Path: path, Branch: branch}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("worktree: preparing parent dir: %w", err)
	}

	if m.branchExists(ctx, branch) {
		if _, err := m.runner.Run(ctx, "git", "worktree", "add", path, branch); err != nil {
			return nil, fmt.Errorf("worktree: adding existing-branch worktree: %w", err)
		}
	} else {
		base := m.BaseBranch(feature)
		if _, err := m.runner.Run(ctx, "git", "worktree", "add", "-b", branch, path, base); err != nil {
			return nil, fmt.Errorf("worktree: adding new-branch worktree: %w", err)
		}
	}

	return &Handle{Path: path, Branch: branch}, nil
}

// Delete removes the checkout at h.Path (with --force when force is true)
// and, unless KeepBranches is set, deletes its branch too.
func (m *Manager) Delete(ctx context.Context, h *Handle, force bool) error {
	args := []string{"worktree", "remove", h.Path}
	if force {
		args = append(args, "--force")
	}
	if _, err := m.runner.Run(ctx, "git", args...); err != nil {
		return fmt.Errorf("worktree: removing %s: %w", h.Path, err)
	}

	if m.cfg.KeepBranches {
		return nil
	}
	if _, err := m.runner.Run(ctx, "git", "branch", "-D", h.Branch); err != nil {
		return fmt.Errorf("worktree: deleting branch %s: %w", h.Branch, err)
	}
	return nil
}

// List returns the worktree handles currently materialized under the
// manager's root for feature, by scanning the directory (not `git
// worktree list`, so it works even if a worktree was removed out of band
// and needs pruning).
func (m *Manager) List(feature string) ([]*Handle, error) {
	entries, err := os.ReadDir(m.cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("worktree: listing %s: %w", m.cfg.Root, err)
	}
	prefix := feature + "-worker-"
	var handles []*Handle
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		id := strings.TrimPrefix(e.Name(), prefix)
		handles = append(handles, &Handle{
			Path:   filepath.Join(m.cfg.Root, e.Name()),
			Branch: fmt.Sprintf("%s/%s/worker-%s", m.cfg.BranchPrefix, feature, id),
		})
	}
	return handles, nil
}

// PruneStale removes worktree registrations whose on-disk directory no
// longer exists (e.g. deleted manually), via `git worktree prune`.
func (m *Manager) PruneStale(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "git", "worktree", "prune"); err != nil {
		return fmt.Errorf("worktree: pruning: %w", err)
	}
	return nil
}

