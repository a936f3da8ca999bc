// Package escalation persists operator-facing failure records separately
// from the FeatureState event log, per SPEC_FULL.md's supplemented
// "escalation records" feature: an append-only,
// ".mahabharatha/state/<feature>.escalations.json" document so recovery
// can surface outstanding escalations without scanning state.
package escalation

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/filelock"
	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/google/uuid"
)

// Store manages the escalations document for one feature.
type Store struct {
	path string
}

// New creates a Store backed by path (typically
// "<state-dir>/<feature>.escalations.json").
func New(path string) *Store {
	return &Store{path: path}
}

// document is the on-disk shape: a flat, append-only list.
type document struct {
	Escalations []models.Escalation `json:"escalations"`
}

// Load reads the current escalation list, returning an empty list if the
// file does not yet exist.
func (s *Store) Load() ([]models.Escalation, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("escalation: reading %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("escalation: parsing %s: %w", s.path, err)
	}
	return doc.Escalations, nil
}

// Append records a new escalation, generating its id, and atomically
// rewrites the document.
func (s *Store) Append(workerID int, taskID, category, message, context string) (models.Escalation, error) {
	existing, err := s.Load()
	if err != nil {
		return models.Escalation{}, err
	}

	e := models.Escalation{
		ID:        uuid.NewString(),
		WorkerID:  workerID,
		TaskID:    taskID,
		Category:  category,
		Message:   message,
		Context:   context,
		CreatedAt: time.Now(),
	}
	existing = append(existing, e)

	if err := s.write(existing); err != nil {
		return models.Escalation{}, err
	}
	return e, nil
}

// Resolve marks the escalation with the given id resolved, leaving every
// other record untouched.
func (s *Store) Resolve(id string) error {
	existing, err := s.Load()
	if err != nil {
		return err
	}
	found := false
	now := time.Now()
	for i := range existing {
		if existing[i].ID == id {
			existing[i].Resolved = true
			existing[i].ResolvedAt = &now
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("escalation: unknown id %s", id)
	}
	return s.write(existing)
}

// Unresolved returns escalations not yet marked resolved.
func (s *Store) Unresolved() ([]models.Escalation, error) {
	all, err := s.Load()
	if err != nil {
		return nil, err
	}
	var open []models.Escalation
	for _, e := range all {
		if !e.Resolved {
			open = append(open, e)
		}
	}
	return open, nil
}

func (s *Store) write(escalations []models.Escalation) error {
	data, err := json.MarshalIndent(document{Escalations: escalations}, "", "  ")
	if err != nil {
		return fmt.Errorf("escalation: marshaling: %w", err)
	}
	if err := filelock.AtomicWrite(s.path, data); err != nil {
		return fmt.Errorf("escalation: writing %s: %w", s.path, err)
	}
	return nil
}
