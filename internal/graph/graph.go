// Package graph loads a task-graph document, validates its invariants, and
// derives dependency levels. See spec §4.1 (TaskGraph & Validator).
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thedataengineer/mahabharatha/internal/models"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only task-graph document version this loader
// accepts (§6).
const SupportedVersion = "2.0"

// IssueKind enumerates the structured InvalidGraph failure categories.
type IssueKind string

const (
	IssueCycle      IssueKind = "cycle"
	IssueMissingDep IssueKind = "missing_dep"
	IssueFileConflict IssueKind = "file_conflict"
	IssueSchema     IssueKind = "schema"
)

// Issue is one validation failure.
type Issue struct {
	Kind    IssueKind
	Message string
}

func (i Issue) Error() string { return fmt.Sprintf("%s: %s", i.Kind, i.Message) }

// InvalidGraphError aggregates one or more validation issues; load fails
// hard on the first batch found.
type InvalidGraphError struct {
	Issues []Issue
}

func (e *InvalidGraphError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.Error()
	}
	return fmt.Sprintf("invalid graph: %s", strings.Join(msgs, "; "))
}

// document is the on-disk shape of a task-graph file (§6).
type document struct {
	Feature    string       `json:"feature" yaml:"feature"`
	Version    string       `json:"version" yaml:"version"`
	TotalTasks int          `json:"total_tasks" yaml:"total_tasks"`
	Tasks      []models.Task `json:"tasks" yaml:"tasks"`
}

// TaskGraph is the immutable, validated view of a task-graph document.
type TaskGraph struct {
	Feature string
	Version string
	Tasks   map[string]*models.Task
	// Levels maps level number to the ordered task ids assigned to it.
	Levels map[int][]string
}

// Load reads path (JSON or YAML, detected by extension, defaulting to
// JSON), derives levels, and validates all of §3's TaskGraph invariants.
// On any violation it returns an *InvalidGraphError and creates no state.
func Load(path string) (*TaskGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: reading %s: %w", path, err)
	}

	var doc document
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yml" || ext == ".yaml" {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &InvalidGraphError{Issues: []Issue{{Kind: IssueSchema, Message: err.Error()}}}
	}

	return FromDocumentFields(doc.Feature, doc.Version, doc.Tasks)
}

// FromDocumentFields builds and validates a TaskGraph from already-parsed
// fields, used by Load and directly by tests.
func FromDocumentFields(feature, version string, tasks []models.Task) (*TaskGraph, error) {
	var issues []Issue

	if feature == "" {
		issues = append(issues, Issue{Kind: IssueSchema, Message: "feature is required"})
	}
	if version != SupportedVersion {
		issues = append(issues, Issue{Kind: IssueSchema, Message: fmt.Sprintf("unsupported version %q, want %q", version, SupportedVersion)})
	}
	if len(tasks) == 0 {
		issues = append(issues, Issue{Kind: IssueSchema, Message: "tasks must not be empty"})
	}
	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			issues = append(issues, Issue{Kind: IssueSchema, Message: err.Error()})
		}
	}
	if len(issues) > 0 {
		return nil, &InvalidGraphError{Issues: issues}
	}

	taskMap := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		if _, dup := taskMap[t.ID]; dup {
			issues = append(issues, Issue{Kind: IssueSchema, Message: fmt.Sprintf("duplicate task id %q", t.ID)})
			continue
		}
		taskMap[t.ID] = &t
	}

	for _, t := range taskMap {
		for _, dep := range t.Dependencies {
			if _, ok := taskMap[dep]; !ok {
				issues = append(issues, Issue{Kind: IssueMissingDep, Message: fmt.Sprintf("task %s depends on unknown task %s", t.ID, dep)})
			}
		}
	}
	if len(issues) > 0 {
		return nil, &InvalidGraphError{Issues: issues}
	}

	plain := make([]models.Task, 0, len(taskMap))
	for _, t := range taskMap {
		plain = append(plain, *t)
	}
	if cyclic, cycle := models.HasCyclicDependencies(plain); cyclic {
		return nil, &InvalidGraphError{Issues: []Issue{{Kind: IssueCycle, Message: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> "))}}}
	}

	levels, err := deriveLevels(taskMap)
	if err != nil {
		return nil, &InvalidGraphError{Issues: []Issue{{Kind: IssueSchema, Message: err.Error()}}}
	}

	for id, lvl := range levels {
		t := taskMap[id]
		if t.Level != 0 && t.Level != lvl {
			issues = append(issues, Issue{Kind: IssueSchema, Message: fmt.Sprintf("task %s declares level %d but derivation computed %d", id, t.Level, lvl)})
		}
		t.Level = lvl
	}
	if len(issues) > 0 {
		return nil, &InvalidGraphError{Issues: issues}
	}

	if conflictIssues := validateFileOwnership(taskMap, levels); len(conflictIssues) > 0 {
		return nil, &InvalidGraphError{Issues: conflictIssues}
	}

	byLevel := make(map[int][]string)
	for id, lvl := range levels {
		byLevel[lvl] = append(byLevel[lvl], id)
	}
	for lvl := range byLevel {
		sort.Strings(byLevel[lvl])
	}

	for _, t := range taskMap {
		if t.Status == "" {
			t.Status = models.TaskPending
		}
	}

	return &TaskGraph{
		Feature: feature,
		Version: version,
		Tasks:   taskMap,
		Levels:  byLevel,
	}, nil
}

// deriveLevels computes each task's level as 1 + max(level of deps), or 1
// if it has none, via longest-path-from-root over the dependency DAG.
// Cycles must already have been ruled out by the caller.
func deriveLevels(tasks map[string]*models.Task) (map[string]int, error) {
	levels := make(map[string]int, len(tasks))
	var resolve func(id string, visiting map[string]bool) int
	resolve = func(id string, visiting map[string]bool) int {
		if lvl, ok := levels[id]; ok {
			return lvl
		}
		if visiting[id] {
			return 1 // unreachable: cycle detection already ran
		}
		visiting[id] = true

		t := tasks[id]
		max := 0
		for _, dep := range t.Dependencies {
			if depLvl := resolve(dep, visiting); depLvl > max {
				max = depLvl
			}
		}
		lvl := max + 1
		levels[id] = lvl
		delete(visiting, id)
		return lvl
	}

	for id := range tasks {
		resolve(id, make(map[string]bool))
	}
	return levels, nil
}

// validateFileOwnership enforces invariant (iv): no two tasks at the same
// level request create or modify on the same path (read is shared), and
// invariant (v): the set of files any task creates is disjoint from files
// created by any other task across all levels.
func validateFileOwnership(tasks map[string]*models.Task, levels map[string]int) []Issue {
	var issues []Issue

	type owner struct {
		taskID string
		level  int
	}
	createdBy := make(map[string]owner)
	sameLevelExclusive := make(map[int]map[string]string) // level -> path -> task id

	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := tasks[id]
		lvl := levels[id]
		if sameLevelExclusive[lvl] == nil {
			sameLevelExclusive[lvl] = make(map[string]string)
		}
		for _, path := range t.Files.Exclusive() {
			if existing, ok := sameLevelExclusive[lvl][path]; ok && existing != id {
				issues = append(issues, Issue{
					Kind:    IssueFileConflict,
					Message: fmt.Sprintf("level %d: tasks %s and %s both create/modify %s", lvl, existing, id, path),
				})
			} else {
				sameLevelExclusive[lvl][path] = id
			}
		}
		for _, path := range t.Files.Create {
			if existing, ok := createdBy[path]; ok && existing.taskID != id {
				issues = append(issues, Issue{
					Kind:    IssueFileConflict,
					Message: fmt.Sprintf("task %s (level %d) and task %s (level %d) both create %s", existing.taskID, existing.level, id, lvl, path),
				})
			} else {
				createdBy[path] = owner{taskID: id, level: lvl}
			}
		}
	}
	return issues
}

// Ready returns the set of task ids whose dependencies are all present in
// completed and which are not already terminal or running.
func (g *TaskGraph) Ready(completed map[string]bool) map[string]bool {
	ready := make(map[string]bool)
	for id, t := range g.Tasks {
		if t.Status != models.TaskPending {
			continue
		}
		if t.IsReady(completed) {
			ready[id] = true
		}
	}
	return ready
}

// ConflictsWith returns the set of files task would exclusively touch
// that are already claimed by a task in assigned.
func (g *TaskGraph) ConflictsWith(taskID string, assigned map[string]bool) map[string]bool {
	t, ok := g.Tasks[taskID]
	if !ok {
		return nil
	}
	conflicts := make(map[string]bool)
	claimed := make(map[string]bool)
	for id := range assigned {
		other, ok := g.Tasks[id]
		if !ok || other.ID == taskID {
			continue
		}
		for _, p := range other.Files.Exclusive() {
			claimed[p] = true
		}
	}
	for _, p := range t.Files.Exclusive() {
		if claimed[p] {
			conflicts[p] = true
		}
	}
	return conflicts
}

// MaxLevel returns the highest level number present in the graph, or 0 if
// the graph has no tasks.
func (g *TaskGraph) MaxLevel() int {
	max := 0
	for lvl := range g.Levels {
		if lvl > max {
			max = lvl
		}
	}
	return max
}
