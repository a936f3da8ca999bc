package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  [][]string
	exists map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{exists: make(map[string]bool)}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == "git" && len(args) >= 2 && args[0] == "show-ref" {
		branch := args[len(args)-1]
		for b, ok := range f.exists {
			if "refs/heads/"+b == branch && ok {
				return "", nil
			}
		}
		return "", fmt.Errorf("not found")
	}
	if name == "git" && len(args) >= 2 && args[0] == "branch" && len(args) == 3 {
		f.exists[args[1]] = true
	}
	return "", nil
}

func cfg(root string) config.WorktreeConfig {
	return config.WorktreeConfig{
		Root:         root,
		BranchPrefix: "mahabharatha",
	}
}

func TestBranchNaming(t *testing.T) {
	m := New("/repo", cfg(filepath.Join(t.TempDir(), "wt")), newFakeRunner())
	assert.Equal(t, "mahabharatha/demo/base", m.BaseBranch("demo"))
	assert.Equal(t, "mahabharatha/demo/staging", m.StagingBranch("demo"))
	assert.Equal(t, "mahabharatha/demo/worker-3", m.WorkerBranch("demo", 3))
	assert.Equal(t, "demo/level-2-complete", m.LevelTag("demo", 2))
}

func TestEnsureBase_CreatesOnce(t *testing.T) {
	runner := newFakeRunner()
	m := New("/repo", cfg(t.TempDir()), runner)

	require.NoError(t, m.EnsureBase(context.Background(), "demo", "main"))
	require.NoError(t, m.EnsureBase(context.Background(), "demo", "main"))

	branchCreations := 0
	for _, c := range runner.calls {
		if len(c) >= 2 && c[0] == "git" && c[1] == "branch" {
			branchCreations++
		}
	}
	assert.Equal(t, 1, branchCreations, "base branch should only be created once")
}

func TestCreate_Idempotent(t *testing.T) {
	root := t.TempDir()
	m := New("/repo", cfg(root), newFakeRunner())

	h1, err := m.Create(context.Background(), "demo", 1)
	require.NoError(t, err)
	assert.Equal(t, "mahabharatha/demo/worker-1", h1.Branch)

	// mkdir the worktree dir to simulate `git worktree add` materializing it
	require.NoError(t, os.MkdirAll(h1.Path, 0755))

	h2, err := m.Create(context.Background(), "demo", 1)
	require.NoError(t, err)
	assert.Equal(t, h1.Path, h2.Path)
}

func TestList_FindsMatchingPrefix(t *testing.T) {
	root := t.TempDir()
	m := New("/repo", cfg(root), newFakeRunner())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo-worker-1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "other-worker-1"), 0755))

	handles, err := m.List("demo")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Contains(t, handles[0].Path, "demo-worker-1")
}
