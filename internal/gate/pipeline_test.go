package gate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner returns a canned (exitCode, err) per command and counts
// invocations, so tests can assert on cache reuse / serialization.
type fakeRunner struct {
	calls   int32
	results map[string]struct {
		exitCode int
		err      error
	}
}

func (f *fakeRunner) Run(ctx context.Context, dir, command string) (string, string, int, error) {
	atomic.AddInt32(&f.calls, 1)
	r, ok := f.results[command]
	if !ok {
		return "", "", 0, nil
	}
	return "out", "err", r.exitCode, r.err
}

func TestPipeline_PassingGatesAllRun(t *testing.T) {
	runner := &fakeRunner{results: map[string]struct {
		exitCode int
		err      error
	}{
		"lint": {0, nil},
		"test": {0, nil},
	}}
	p := NewPipeline(runner, NewCache(time.Minute), t.TempDir(), "v1")

	gates := []config.GateDefinition{
		{Name: "lint", Command: "lint", TimeoutSeconds: 5, Required: true},
		{Name: "test", Command: "test", TimeoutSeconds: 5, Required: true},
	}
	res := p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	require.True(t, res.Passed)
	require.Len(t, res.GateResults, 2)
	assert.Equal(t, int32(2), runner.calls)
}

func TestPipeline_RequiredFailureShortCircuits(t *testing.T) {
	runner := &fakeRunner{results: map[string]struct {
		exitCode int
		err      error
	}{
		"lint": {1, nil},
		"test": {0, nil},
	}}
	p := NewPipeline(runner, NewCache(time.Minute), t.TempDir(), "v1")

	gates := []config.GateDefinition{
		{Name: "lint", Command: "lint", TimeoutSeconds: 5, Required: true},
		{Name: "test", Command: "test", TimeoutSeconds: 5, Required: true},
	}
	res := p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	assert.False(t, res.Passed)
	require.Len(t, res.GateResults, 1) // "test" never ran
	assert.Equal(t, int32(1), runner.calls)
}

func TestPipeline_NonRequiredFailureDoesNotBlock(t *testing.T) {
	runner := &fakeRunner{results: map[string]struct {
		exitCode int
		err      error
	}{
		"lint": {1, nil},
		"test": {0, nil},
	}}
	p := NewPipeline(runner, NewCache(time.Minute), t.TempDir(), "v1")

	gates := []config.GateDefinition{
		{Name: "lint", Command: "lint", TimeoutSeconds: 5, Required: false},
		{Name: "test", Command: "test", TimeoutSeconds: 5, Required: true},
	}
	res := p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	assert.True(t, res.Passed)
	require.Len(t, res.GateResults, 2)
}

func TestPipeline_CacheReuseAvoidsSecondExecution(t *testing.T) {
	runner := &fakeRunner{results: map[string]struct {
		exitCode int
		err      error
	}{"lint": {0, nil}}}
	cache := NewCache(time.Minute)
	p := NewPipeline(runner, cache, t.TempDir(), "v1")

	gates := []config.GateDefinition{{Name: "lint", Command: "lint", TimeoutSeconds: 5, Required: true}}
	p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	assert.Equal(t, int32(1), runner.calls)
}

func TestPipeline_DifferentTreeBustsCache(t *testing.T) {
	runner := &fakeRunner{results: map[string]struct {
		exitCode int
		err      error
	}{"lint": {0, nil}}}
	p := NewPipeline(runner, NewCache(time.Minute), t.TempDir(), "v1")

	gates := []config.GateDefinition{{Name: "lint", Command: "lint", TimeoutSeconds: 5, Required: true}}
	p.Run(context.Background(), 1, t.TempDir(), "treeA", gates)
	p.Run(context.Background(), 1, t.TempDir(), "treeB", gates)
	assert.Equal(t, int32(2), runner.calls)
}
