// Package scheduler implements the side-effect-free dispatch decision of
// §4.6: which ready task goes to which idle worker, given file-ownership
// and dependency constraints.
package scheduler

import (
	"sort"

	"github.com/thedataengineer/mahabharatha/internal/graph"
)

// Assignment pairs a worker with the task it should start.
type Assignment struct {
	WorkerID int
	TaskID   string
}

// Next returns as many assignments as possible for the given level, such
// that no two in-flight tasks (existing inFlight plus new assignments)
// share a create/modify file, each idle worker gets at most one task,
// and tasks on the longer critical path (more downstream consumers, via
// the graph's transitive dependents) are preferred, with a lexicographic
// tie-break for determinism (§4.6).
//
// readyTasks and idleWorkers are consumed, not mutated. The caller is
// responsible for applying the resulting assignments to its own state;
// Next has no side effects and may be safely re-invoked on every
// scheduling event.
func Next(g *graph.TaskGraph, readyTasks map[string]bool, idleWorkers []int, inFlight map[string]bool) []Assignment {
	if len(readyTasks) == 0 || len(idleWorkers) == 0 {
		return nil
	}

	candidates := make([]string, 0, len(readyTasks))
	for id := range readyTasks {
		candidates = append(candidates, id)
	}
	sortByPriority(g, candidates)

	workers := append([]int{}, idleWorkers...)
	sort.Ints(workers)

	claimed := make(map[string]bool)
	for id := range inFlight {
		if t, ok := g.Tasks[id]; ok {
			for _, p := range t.Files.Exclusive() {
				claimed[p] = true
			}
		}
	}

	var assignments []Assignment
	wi := 0
	for _, taskID := range candidates {
		if wi >= len(workers) {
			break
		}
		t, ok := g.Tasks[taskID]
		if !ok {
			continue
		}
		conflict := false
		for _, p := range t.Files.Exclusive() {
			if claimed[p] {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		assignments = append(assignments, Assignment{WorkerID: workers[wi], TaskID: taskID})
		wi++
		for _, p := range t.Files.Exclusive() {
			claimed[p] = true
		}
	}
	return assignments
}

// sortByPriority orders candidate task ids by critical-path length
// (longer downstream chains first), then lexicographically by id for a
// deterministic, reproducible tie-break.
func sortByPriority(g *graph.TaskGraph, candidates []string) {
	depth := criticalPathDepth(g)
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := depth[candidates[i]], depth[candidates[j]]
		if di != dj {
			return di > dj
		}
		return candidates[i] < candidates[j]
	})
}

// criticalPathDepth computes, for each task, the length of the longest
// chain of consumers reachable from it (i.e. how many levels downstream
// depend on it transitively), used as the "longer downstream" tie-break
// of §4.6.
func criticalPathDepth(g *graph.TaskGraph) map[string]int {
	dependents := make(map[string][]string, len(g.Tasks))
	for id, t := range g.Tasks {
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	memo := make(map[string]int, len(g.Tasks))
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		memo[id] = 0 // guard against any residual cycle
		max := 0
		for _, child := range dependents[id] {
			if d := depth(child) + 1; d > max {
				max = d
			}
		}
		memo[id] = max
		return max
	}

	for id := range g.Tasks {
		depth(id)
	}
	return memo
}
