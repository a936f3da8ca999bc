package models

import "time"

// SchemaVersion is the current FeatureState schema version. Readers
// ignore unknown fields; removing or retyping a field requires bumping
// this and providing a migration path.
const SchemaVersion = "1"

// MaxEvents bounds the append-only event log to the last N entries
// (circular-buffer semantics applied on append).
const MaxEvents = 500

// Event is a single append-only, observability-only record. Control flow
// must never be driven from this list; always read the authoritative
// task/worker/level records instead.
type Event struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id,omitempty"`
	WorkerID  *int      `json:"worker_id,omitempty"`
	Level     *int      `json:"level,omitempty"`
}

// FeatureState is the single persisted document shared between the
// orchestrator and its workers. The orchestrator is the sole writer of
// everything except `workers[id]` and `tasks[id]`'s progress subset,
// which each worker may update for its own id only; this is enforced by
// the StateStore's mutator, not by OS permissions.
type FeatureState struct {
	SchemaVersion string           `json:"schema_version"`
	Feature       string           `json:"feature"`
	CurrentLevel  int              `json:"current_level"`
	Levels        []*Level         `json:"levels"`
	Tasks         map[string]*Task `json:"tasks"`
	Workers       map[int]*Worker  `json:"workers"`
	Events        []Event          `json:"events"`
	Sequence      uint64           `json:"sequence"`
	LastUpdateTS  time.Time        `json:"last_update_ts"`
}

// New creates a pristine FeatureState for a feature name.
func New(feature string) *FeatureState {
	return &FeatureState{
		SchemaVersion: SchemaVersion,
		Feature:       feature,
		CurrentLevel:  0,
		Levels:        nil,
		Tasks:         make(map[string]*Task),
		Workers:       make(map[int]*Worker),
		Events:        nil,
	}
}

// AppendEvent appends an event, bumping Sequence and truncating the log
// to MaxEvents, keeping the most recent entries.
func (s *FeatureState) AppendEvent(kind, message string) Event {
	s.Sequence++
	ev := Event{
		Sequence:  s.Sequence,
		Timestamp: time.Now(),
		Kind:      kind,
		Message:   message,
	}
	s.Events = append(s.Events, ev)
	if len(s.Events) > MaxEvents {
		s.Events = s.Events[len(s.Events)-MaxEvents:]
	}
	return ev
}

// LevelByNumber returns the level record for N, or nil if absent.
func (s *FeatureState) LevelByNumber(n int) *Level {
	for _, l := range s.Levels {
		if l.Number == n {
			return l
		}
	}
	return nil
}

// Clone returns a deep-enough copy for safe mutate-then-compare use in
// the StateStore's optimistic update loop. Event history is copied by
// value; Tasks/Workers maps are copied one level deep (pointee structs
// are copied, not shared).
func (s *FeatureState) Clone() *FeatureState {
	c := *s
	c.Tasks = make(map[string]*Task, len(s.Tasks))
	for k, v := range s.Tasks {
		tv := *v
		c.Tasks[k] = &tv
	}
	c.Workers = make(map[int]*Worker, len(s.Workers))
	for k, v := range s.Workers {
		wv := *v
		c.Workers[k] = &wv
	}
	if s.Levels != nil {
		c.Levels = make([]*Level, len(s.Levels))
		for i, l := range s.Levels {
			lv := *l
			if l.TaskIDs != nil {
				lv.TaskIDs = append([]string{}, l.TaskIDs...)
			}
			c.Levels[i] = &lv
		}
	}
	if s.Events != nil {
		c.Events = append([]Event{}, s.Events...)
	}
	return &c
}
