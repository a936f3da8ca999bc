package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thedataengineer/mahabharatha/internal/models"
)

func TestWriteBlockerReport(t *testing.T) {
	state := models.New("demo")
	state.CurrentLevel = 1
	state.Levels = []*models.Level{
		{Number: 1, Status: models.LevelRunning, TaskIDs: []string{"T1", "T2"}},
	}
	state.Tasks["T1"] = &models.Task{ID: "T1", Title: "first task", Status: models.TaskBlocked}
	state.Tasks["T2"] = &models.Task{ID: "T2", Title: "second task", Status: models.TaskCompleted}

	escalations := []models.Escalation{
		{TaskID: "T1", WorkerID: 2, Category: "missing_dependency", Message: "needs internal/foo"},
	}

	path := filepath.Join(t.TempDir(), "demo-blockers.html")
	if err := writeBlockerReport(path, state, escalations); err != nil {
		t.Fatalf("writeBlockerReport() returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}

	html := string(data)
	for _, want := range []string{"<h1>", "first task", "missing_dependency", "needs internal/foo"} {
		if !containsAll(html, want) {
			t.Errorf("blocker report missing %q, got: %s", want, html)
		}
	}
	if containsAll(html, "second task") {
		t.Errorf("blocker report should not mention non-blocked tasks, got: %s", html)
	}
}
