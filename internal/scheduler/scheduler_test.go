package scheduler

import (
	"testing"

	"github.com/thedataengineer/mahabharatha/internal/graph"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, tasks []models.Task) *graph.TaskGraph {
	t.Helper()
	g, err := graph.FromDocumentFields("demo", graph.SupportedVersion, tasks)
	require.NoError(t, err)
	return g
}

func task(id string, deps []string, create ...string) models.Task {
	return models.Task{
		ID:           id,
		Title:        "t-" + id,
		Dependencies: deps,
		Files:        models.Files{Create: create},
		Verification: models.Verification{Command: "true", TimeoutSeconds: 10},
	}
}

func TestNext_NoReadyTasksOrIdleWorkersReturnsNil(t *testing.T) {
	g := buildGraph(t, []models.Task{task("T1", nil, "a.txt")})
	assert.Nil(t, Next(g, nil, []int{1}, nil))
	assert.Nil(t, Next(g, map[string]bool{"T1": true}, nil, nil))
}

func TestNext_AssignsDisjointFilesConcurrently(t *testing.T) {
	g := buildGraph(t, []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "b.txt"),
	})
	ready := map[string]bool{"T1": true, "T2": true}
	assignments := Next(g, ready, []int{1, 2}, nil)
	require.Len(t, assignments, 2)
}

func TestNext_SerializesConflictingFiles(t *testing.T) {
	g := buildGraph(t, []models.Task{
		task("T1", nil, "a.txt"),
	})
	ready := map[string]bool{"T1": true}
	// T1's file is already claimed by an in-flight task.
	inFlight := map[string]bool{"T1": true}
	assignments := Next(g, ready, []int{1, 2}, inFlight)
	assert.Empty(t, assignments)
}

func TestNext_OneTaskPerWorker(t *testing.T) {
	g := buildGraph(t, []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "b.txt"),
	})
	ready := map[string]bool{"T1": true, "T2": true}
	assignments := Next(g, ready, []int{1}, nil)
	assert.Len(t, assignments, 1)
}

func TestNext_PrefersCriticalPath(t *testing.T) {
	// T1 has a long downstream chain (T2 -> T3); T4 is a leaf. With one
	// idle worker, T1 should be preferred.
	g := buildGraph(t, []models.Task{
		task("T1", nil, "a.txt"),
		task("T4", nil, "d.txt"),
		task("T2", []string{"T1"}, "b.txt"),
		task("T3", []string{"T2"}, "c.txt"),
	})
	ready := map[string]bool{"T1": true, "T4": true}
	assignments := Next(g, ready, []int{1}, nil)
	require.Len(t, assignments, 1)
	assert.Equal(t, "T1", assignments[0].TaskID)
}

func TestNext_LexicographicTieBreak(t *testing.T) {
	g := buildGraph(t, []models.Task{
		task("Tb", nil, "b.txt"),
		task("Ta", nil, "a.txt"),
	})
	ready := map[string]bool{"Ta": true, "Tb": true}
	assignments := Next(g, ready, []int{1}, nil)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Ta", assignments[0].TaskID)
}

func TestNext_Deterministic(t *testing.T) {
	g := buildGraph(t, []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "b.txt"),
		task("T3", nil, "c.txt"),
	})
	ready := map[string]bool{"T1": true, "T2": true, "T3": true}

	first := Next(g, ready, []int{1, 2, 3}, nil)
	second := Next(g, ready, []int{1, 2, 3}, nil)
	assert.Equal(t, first, second)
}
