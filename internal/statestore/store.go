// Package statestore provides the durable, crash-safe FeatureState
// document shared between the orchestrator and its workers (§4.2).
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/filelock"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/gofrs/flock"
)

// Sentinel errors for the StateStore's failure taxonomy (§4.2, §7).
var (
	// ErrStale is returned when the update loop exhausts its retry budget
	// without a successful write.
	ErrStale = errors.New("statestore: stale write, exhausted retries")
	// ErrSchemaMismatch is returned when the on-disk document declares an
	// unknown schema_version.
	ErrSchemaMismatch = errors.New("statestore: unknown schema version")
	// ErrCorrupt is returned when the document fails to parse and no .bak
	// copy is available to recover from.
	ErrCorrupt = errors.New("statestore: corrupt state and no backup available")
)

// Mutator mutates a FeatureState in place and returns an error to abort
// the write (leaving the document unchanged).
type Mutator func(*models.FeatureState) error

// Store is a file-backed StateStore. It has no in-process mutex: every
// Update takes the advisory flock on the state path's lock file through
// its own file descriptor, which serializes goroutines of this process
// and other processes alike.
type Store struct {
	path        string
	maxRetries  int
	retryBackoff time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries overrides the default optimistic-concurrency retry
// budget (default 5).
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// WithRetryBackoff overrides the base backoff between retries (default
// 20ms, doubled per attempt).
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Store) { s.retryBackoff = d }
}

// New creates a Store for the given feature-state path
// (".mahabharatha/state/<feature>.json").
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, maxRetries: 5, retryBackoff: 20 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lockPath() string { return s.path + ".lock" }
func (s *Store) bakPath() string  { return s.path + ".bak" }

// Init writes a pristine FeatureState if the document does not already
// exist; it is a no-op otherwise so re-running `mahabharatha run` resumes
// rather than resets.
func (s *Store) Init(feature string) (*models.FeatureState, error) {
	if _, err := os.Stat(s.path); err == nil {
		return s.Load()
	}
	state := models.New(feature)
	if err := s.writeLocked(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Load reads the current FeatureState, tolerant of a partially-written
// ".tmp" file (which atomic writes never leave behind, but a crash mid
// os.Rename on a non-POSIX filesystem might) and falling back to the
// ".bak" copy if the primary document fails to parse.
func (s *Store) Load() (*models.FeatureState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("statestore: reading %s: %w", s.path, err)
	}

	state, parseErr := parse(data)
	if parseErr == nil {
		return state, nil
	}

	bak, bakErr := os.ReadFile(s.bakPath())
	if bakErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, parseErr)
	}
	state, parseErr = parse(bak)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, parseErr)
	}
	return state, nil
}

func parse(data []byte) (*models.FeatureState, error) {
	var state models.FeatureState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.SchemaVersion != "" && state.SchemaVersion != models.SchemaVersion {
		return nil, ErrSchemaMismatch
	}
	return &state, nil
}

// Update performs a read-modify-write of the FeatureState under the
// advisory file lock. If writing the document fails, it reloads,
// re-applies mutate and tries again with exponential backoff and jitter,
// up to maxRetries times, then returns ErrStale. mutate must only touch fields it owns; the
// orchestrator's mutate callback may touch anything, while
// UpdateWorker restricts the callback to one worker's own records.
func (s *Store) Update(mutate Mutator) (*models.FeatureState, error) {
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("statestore: acquiring lock: %w", err)
	}
	defer lock.Unlock()

	var lastErr error
	backoff := s.retryBackoff
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		state, err := s.Load()
		if err != nil {
			return nil, err
		}
		before := state.Sequence
		snapshot := state.Clone()

		if err := mutate(state); err != nil {
			return nil, err
		}

		if statesEqual(snapshot, state) {
			return state, nil // no observable change: elided write
		}
		if state.Sequence == before {
			state.Sequence++
		}
		state.LastUpdateTS = time.Now()

		if err := s.writeLocked(state); err != nil {
			lastErr = err
			time.Sleep(jitter(backoff))
			backoff *= 2
			continue
		}
		return state, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStale, lastErr)
	}
	return nil, ErrStale
}

// UpdateWorker applies patch to workers[workerID] and the progress
// subset of tasks[currentTaskID], enforcing §4.2's ownership rule that a
// worker may only modify its own records. It is the entry point workers
// use; the orchestrator uses Update directly for everything else.
func (s *Store) UpdateWorker(workerID int, patch func(w *models.Worker, currentTask *models.Task)) (*models.FeatureState, error) {
	return s.Update(func(state *models.FeatureState) error {
		w, ok := state.Workers[workerID]
		if !ok {
			return fmt.Errorf("statestore: unknown worker %d", workerID)
		}
		var task *models.Task
		if w.CurrentTaskID != "" {
			task = state.Tasks[w.CurrentTaskID]
		}
		patch(w, task)
		return nil
	})
}

// AppendEvent appends an observability event under the bounded
// circular-buffer semantics of §4.2 (kept to the last models.MaxEvents
// entries).
func (s *Store) AppendEvent(kind, message string) (*models.FeatureState, error) {
	return s.Update(func(state *models.FeatureState) error {
		state.AppendEvent(kind, message)
		return nil
	})
}

// writeLocked snapshots the prior-good document to .bak (if one exists)
// then atomically replaces the primary document. Called only while the
// caller already holds the advisory lock, except from Init.
func (s *Store) writeLocked(state *models.FeatureState) error {
	if existing, err := os.ReadFile(s.path); err == nil {
		_ = filelock.AtomicWrite(s.bakPath(), existing)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshaling state: %w", err)
	}
	if err := filelock.AtomicWrite(s.path, data); err != nil {
		return fmt.Errorf("statestore: writing %s: %w", s.path, err)
	}
	return nil
}

func statesEqual(a, b *models.FeatureState) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	delta := time.Duration(rand.Int63n(int64(base)))
	return base/2 + delta/2
}

// EnsureDir creates the parent directory of path if missing.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
