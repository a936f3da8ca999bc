package models

import (
	"fmt"
	"time"
)

// Task status values. A task's lifecycle runs pending -> ready -> running
// -> (verifying) -> completed|failed|blocked, with an optional paused
// detour when a worker checkpoints mid-task.
const (
	TaskPending   = "pending"
	TaskReady     = "ready"
	TaskRunning   = "running"
	TaskVerifying = "verifying"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskBlocked   = "blocked"
	TaskPaused    = "paused"
)

// FileOp is a file operation a task declares against a path.
type FileOp string

const (
	OpCreate FileOp = "create"
	OpModify FileOp = "modify"
	OpRead   FileOp = "read"
)

// Files is the set of paths a task touches, partitioned by operation.
// Read is shared across concurrently running tasks; Create and Modify
// are exclusive at a given level.
type Files struct {
	Create []string `json:"create,omitempty" yaml:"create,omitempty"`
	Modify []string `json:"modify,omitempty" yaml:"modify,omitempty"`
	Read   []string `json:"read,omitempty" yaml:"read,omitempty"`
}

// Exclusive returns the union of Create and Modify: the paths this task
// owns exclusively for the duration of its execution.
func (f Files) Exclusive() []string {
	out := make([]string, 0, len(f.Create)+len(f.Modify))
	out = append(out, f.Create...)
	out = append(out, f.Modify...)
	return out
}

// Verification describes the command a worker (or the orchestrator, on
// the worker's behalf) runs to confirm a task's output before it is
// marked completed.
type Verification struct {
	Command         string `json:"command" yaml:"command"`
	TimeoutSeconds  int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Task is a single unit of work with exclusive file ownership at its
// level.
type Task struct {
	ID              string         `json:"id" yaml:"id"`
	Title           string         `json:"title" yaml:"title"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	Level           int            `json:"level,omitempty" yaml:"level,omitempty"`
	Dependencies    []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Files           Files          `json:"files" yaml:"files"`
	Verification    Verification   `json:"verification" yaml:"verification"`
	Consumers       []string       `json:"consumers,omitempty" yaml:"consumers,omitempty"`
	IntegrationTest string         `json:"integration_test,omitempty" yaml:"integration_test,omitempty"`
	Context         map[string]any `json:"context,omitempty" yaml:"context,omitempty"`

	Attempts int    `json:"attempts" yaml:"attempts"`
	Status   string `json:"status" yaml:"status"`
	// WorkerID is the worker currently (or most recently) assigned to this
	// task, so the MergeCoordinator can attribute a completed task to the
	// worker branch that produced it without scanning every worker record.
	WorkerID int `json:"worker_id,omitempty" yaml:"worker_id,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Validate checks the required fields of a task in isolation (graph-wide
// invariants — cycles, missing deps, file conflicts — are checked by the
// graph package, not here).
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s: title is required", t.ID)
	}
	if t.Verification.Command == "" {
		return fmt.Errorf("task %s: verification.command is required", t.ID)
	}
	if t.Verification.TimeoutSeconds <= 0 {
		return fmt.Errorf("task %s: verification.timeout_seconds must be positive", t.ID)
	}
	return nil
}

// IsTerminal reports whether the task has reached a status from which it
// will not be rescheduled without operator intervention.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskBlocked
}

// IsReady reports whether every dependency of t is present and completed
// in the given completed-set.
func (t *Task) IsReady(completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// HasCyclicDependencies detects circular dependencies in a set of tasks
// using DFS with white/gray/black color marking. A self-dependency is
// treated as a cycle of length one.
func HasCyclicDependencies(tasks []Task) (bool, []string) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	path := make([]string, 0, len(tasks))

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for _, t := range tasks {
			if t.ID != id {
				continue
			}
			for _, dep := range t.Dependencies {
				if dep == id {
					cycle = append(append([]string{}, path...), dep)
					return true
				}
				if !known[dep] {
					continue // missing deps are reported by the validator, not here
				}
				switch color[dep] {
				case gray:
					cycle = append(append([]string{}, path...), dep)
					return true
				case white:
					if dfs(dep) {
						return true
					}
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if dfs(t.ID) {
				return true, cycle
			}
		}
	}
	return false, nil
}
