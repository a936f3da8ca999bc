package models

import "time"

// Escalation is a durable record of an unresolvable worker-level failure
// (ambiguous spec, missing dependency) surfacing for operator action. It
// is persisted separately from the event log so recovery can surface
// outstanding escalations without scanning the whole state document.
type Escalation struct {
	ID         string    `json:"id"`
	WorkerID   int       `json:"worker_id"`
	TaskID     string    `json:"task_id"`
	Category   string    `json:"category"` // ambiguous_spec | missing_dependency
	Message    string    `json:"message"`
	Context    string    `json:"context,omitempty"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
