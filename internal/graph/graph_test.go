package graph

import (
	"testing"

	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id string, deps []string, create ...string) models.Task {
	return models.Task{
		ID:           id,
		Title:        "t-" + id,
		Dependencies: deps,
		Files:        models.Files{Create: create},
		Verification: models.Verification{Command: "true", TimeoutSeconds: 10},
	}
}

func TestFromDocumentFields_LinearLevels(t *testing.T) {
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", []string{"T1"}, "b.txt"),
	}
	g, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Tasks["T1"].Level)
	assert.Equal(t, 2, g.Tasks["T2"].Level)
	assert.Equal(t, []string{"T1"}, g.Levels[1])
	assert.Equal(t, []string{"T2"}, g.Levels[2])
}

func TestFromDocumentFields_ParallelLevel(t *testing.T) {
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "b.txt"),
		task("T3", []string{"T1", "T2"}, "c.txt"),
	}
	g, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"T1", "T2"}, g.Levels[1])
	assert.Equal(t, 2, g.Tasks["T3"].Level)
}

func TestFromDocumentFields_CycleRejected(t *testing.T) {
	tasks := []models.Task{
		task("T1", []string{"T2"}, "a.txt"),
		task("T2", []string{"T1"}, "b.txt"),
	}
	_, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.Error(t, err)
	var ige *InvalidGraphError
	require.ErrorAs(t, err, &ige)
	assert.Equal(t, IssueCycle, ige.Issues[0].Kind)
}

func TestFromDocumentFields_MissingDependencyRejected(t *testing.T) {
	tasks := []models.Task{
		task("T1", []string{"ghost"}, "a.txt"),
	}
	_, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.Error(t, err)
	var ige *InvalidGraphError
	require.ErrorAs(t, err, &ige)
	assert.Equal(t, IssueMissingDep, ige.Issues[0].Kind)
}

func TestFromDocumentFields_SameLevelFileConflictRejected(t *testing.T) {
	// S6: T1 and T2 both create a.txt at level 1.
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "a.txt"),
	}
	_, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.Error(t, err)
	var ige *InvalidGraphError
	require.ErrorAs(t, err, &ige)
	assert.Equal(t, IssueFileConflict, ige.Issues[0].Kind)
}

func TestFromDocumentFields_CrossLevelCreateConflictRejected(t *testing.T) {
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", []string{"T1"}, "a.txt"),
	}
	_, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.Error(t, err)
	var ige *InvalidGraphError
	require.ErrorAs(t, err, &ige)
	assert.Equal(t, IssueFileConflict, ige.Issues[0].Kind)
}

func TestFromDocumentFields_ReadIsShared(t *testing.T) {
	t1 := task("T1", nil, "a.txt")
	t1.Files.Read = []string{"shared.txt"}
	t2 := task("T2", nil, "b.txt")
	t2.Files.Read = []string{"shared.txt"}
	_, err := FromDocumentFields("demo", SupportedVersion, []models.Task{t1, t2})
	require.NoError(t, err)
}

func TestFromDocumentFields_DeclaredLevelMismatch(t *testing.T) {
	t1 := task("T1", nil, "a.txt")
	t2 := task("T2", []string{"T1"}, "b.txt")
	t2.Level = 5 // wrong, should derive to 2
	_, err := FromDocumentFields("demo", SupportedVersion, []models.Task{t1, t2})
	require.Error(t, err)
}

func TestReady_RespectsDependencies(t *testing.T) {
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", []string{"T1"}, "b.txt"),
	}
	g, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.NoError(t, err)

	ready := g.Ready(map[string]bool{})
	assert.True(t, ready["T1"])
	assert.False(t, ready["T2"])

	ready = g.Ready(map[string]bool{"T1": true})
	assert.True(t, ready["T2"])
}

func TestConflictsWith(t *testing.T) {
	tasks := []models.Task{
		task("T1", nil, "a.txt"),
		task("T2", nil, "b.txt"),
	}
	g, err := FromDocumentFields("demo", SupportedVersion, tasks)
	require.NoError(t, err)

	conflicts := g.ConflictsWith("T1", map[string]bool{"T2": true})
	assert.Empty(t, conflicts)
}

func TestLoad_RejectsUnsupportedVersion(t *testing.T) {
	_, err := FromDocumentFields("demo", "1.0", []models.Task{task("T1", nil, "a.txt")})
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/graph.json")
	require.Error(t, err)
}
