// Package merge implements the level-drain integration pass of §4.9: reset
// staging from base, merge each contributing worker branch in
// deterministic order, run the gate pipeline, and either fast-forward
// base and tag it or roll back and fail the level.
package merge

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/thedataengineer/mahabharatha/internal/gate"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/thedataengineer/mahabharatha/internal/worktree"
)

// Runner abstracts git command execution rooted at an explicit directory,
// matching the reference implementation's CommandRunner convention.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ShellRunner runs commands via os/exec.
type ShellRunner struct{}

// Run implements Runner.
func (ShellRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Contribution identifies one worker branch to merge into staging at
// level drain.
type Contribution struct {
	WorkerID int
	Branch   string
}

// ConflictError reports a merge conflict that aborted the level, per
// §4.9's `MergeConflict{worker, files}` failure.
type ConflictError struct {
	WorkerID int
	Branch   string
	Files    []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict merging %s (worker %d): %s", e.Branch, e.WorkerID, strings.Join(e.Files, ", "))
}

// GateFailureError reports that one or more required gates blocked the
// merge after a clean integration.
type GateFailureError struct {
	Results []models.GateResult
}

func (e *GateFailureError) Error() string {
	var failed []string
	for _, r := range e.Results {
		if r.Blocking() {
			failed = append(failed, r.Gate)
		}
	}
	return fmt.Sprintf("gate pipeline blocked merge: %s", strings.Join(failed, ", "))
}

// Coordinator runs the level-drain merge algorithm against the main
// repository checkout (never a worker's isolated worktree).
type Coordinator struct {
	repoDir  string
	wt       *worktree.Manager
	runner   Runner
	pipeline *gate.Pipeline
	gates    []config.GateDefinition
}

// New creates a Coordinator. repoDir is the orchestrator's own working
// copy, distinct from any worker worktree; base and staging branches are
// only ever touched here.
func New(repoDir string, wt *worktree.Manager, runner Runner, pipeline *gate.Pipeline, gates []config.GateDefinition) *Coordinator {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Coordinator{repoDir: repoDir, wt: wt, runner: runner, pipeline: pipeline, gates: gates}
}

// Merge drains level n: it merges every contributing worker branch onto a
// freshly reset staging branch, gates the result, and on success
// fast-forwards base and tags it `<feature>/level-<n>-complete`. It is
// idempotent: if the tag already exists (e.g. a prior run was
// interrupted after tagging but before state update), Merge observes it
// and returns success without re-merging.
func (c *Coordinator) Merge(ctx context.Context, feature string, level int, contributions []Contribution) (models.MergeOutcome, error) {
	tag := c.wt.LevelTag(feature, level)
	if commit, ok := c.resolvedTag(ctx, tag); ok {
		return models.MergeOutcome{CommitID: commit}, nil
	}

	base := c.wt.BaseBranch(feature)
	staging := c.wt.StagingBranch(feature)

	if _, err := c.runner.Run(ctx, c.repoDir, "git", "checkout", "-B", staging, base); err != nil {
		return models.MergeOutcome{}, fmt.Errorf("merge: resetting staging from base: %w", err)
	}

	ordered := append([]Contribution{}, contributions...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].WorkerID != ordered[j].WorkerID {
			return ordered[i].WorkerID < ordered[j].WorkerID
		}
		return ordered[i].Branch < ordered[j].Branch
	})

	for _, contrib := range ordered {
		if _, err := c.runner.Run(ctx, c.repoDir, "git", "merge", "--no-ff", "--no-edit", contrib.Branch); err != nil {
			files := c.conflictedFiles(ctx)
			c.abortMerge(ctx)
			c.resetStagingToBase(ctx, staging, base)
			outcome := models.MergeOutcome{FailReason: fmt.Sprintf("merge conflict merging %s (worker %d)", contrib.Branch, contrib.WorkerID)}
			return outcome, &ConflictError{WorkerID: contrib.WorkerID, Branch: contrib.Branch, Files: files}
		}
	}

	treeHash, err := c.runner.Run(ctx, c.repoDir, "git", "rev-parse", staging+"^{tree}")
	if err != nil {
		return models.MergeOutcome{}, fmt.Errorf("merge: resolving staging tree hash: %w", err)
	}
	treeHash = strings.TrimSpace(treeHash)

	result := c.pipeline.Run(ctx, level, c.repoDir, treeHash, c.gates)
	if !result.Passed {
		c.resetStagingToBase(ctx, staging, base)
		outcome := models.MergeOutcome{GateResults: result.GateResults, FailReason: "required gate blocked merge"}
		return outcome, &GateFailureError{Results: result.GateResults}
	}

	if _, err := c.runner.Run(ctx, c.repoDir, "git", "branch", "-f", base, staging); err != nil {
		return models.MergeOutcome{}, fmt.Errorf("merge: fast-forwarding base: %w", err)
	}
	if _, err := c.runner.Run(ctx, c.repoDir, "git", "tag", tag, base); err != nil {
		return models.MergeOutcome{}, fmt.Errorf("merge: tagging %s: %w", tag, err)
	}

	for _, contrib := range ordered {
		c.rebaseOntoNewBase(ctx, contrib.Branch, base)
	}

	commit, err := c.runner.Run(ctx, c.repoDir, "git", "rev-parse", base)
	if err != nil {
		return models.MergeOutcome{}, fmt.Errorf("merge: resolving base commit: %w", err)
	}

	return models.MergeOutcome{CommitID: strings.TrimSpace(commit), GateResults: result.GateResults}, nil
}

// resolvedTag reports whether tag already exists and, if so, its commit.
func (c *Coordinator) resolvedTag(ctx context.Context, tag string) (string, bool) {
	out, err := c.runner.Run(ctx, c.repoDir, "git", "rev-parse", "--verify", tag)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(out), true
}

func (c *Coordinator) conflictedFiles(ctx context.Context) []string {
	out, err := c.runner.Run(ctx, c.repoDir, "git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files
}

func (c *Coordinator) abortMerge(ctx context.Context) {
	_, _ = c.runner.Run(ctx, c.repoDir, "git", "merge", "--abort")
}

func (c *Coordinator) resetStagingToBase(ctx context.Context, staging, base string) {
	_, _ = c.runner.Run(ctx, c.repoDir, "git", "checkout", "-B", staging, base)
}

// rebaseOntoNewBase rebases a worker branch onto the new base so the next
// level starts from integrated history (§4.9 step 5). Failures here are
// non-fatal to the merge that already succeeded; the worker will surface
// a conflict on its next task attempt instead.
func (c *Coordinator) rebaseOntoNewBase(ctx context.Context, branch, base string) {
	_, _ = c.runner.Run(ctx, c.repoDir, "git", "checkout", branch)
	if _, err := c.runner.Run(ctx, c.repoDir, "git", "rebase", base); err != nil {
		_, _ = c.runner.Run(ctx, c.repoDir, "git", "rebase", "--abort")
	}
}
