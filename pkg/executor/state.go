package executor

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Status is an artifact's lifecycle position. Transitions are one-way
// out of StatusNotStarted.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// State tracks every artifact of a run in exactly one status. It is
// checkpointed to the store after each transition.
type State struct {
	RunID          string
	RunbookHash    string
	LastCheckpoint time.Time

	statuses map[string]Status
}

// NewState starts every artifact as not started.
func NewState(runID, runbookHash string, artifactIDs []string) *State {
	s := &State{
		RunID:       runID,
		RunbookHash: runbookHash,
		statuses:    make(map[string]Status, len(artifactIDs)),
	}
	for _, id := range artifactIDs {
		s.statuses[id] = StatusNotStarted
	}
	return s
}

// StatusOf returns the artifact's current status.
func (s *State) StatusOf(id string) Status {
	if st, ok := s.statuses[id]; ok {
		return st
	}
	return StatusNotStarted
}

// Mark transitions an artifact out of not_started. Re-marking a
// settled artifact is an error; state transitions are one-way.
func (s *State) Mark(id string, to Status) error {
	cur, ok := s.statuses[id]
	if !ok {
		return fmt.Errorf("state: unknown artifact %q", id)
	}
	if cur != StatusNotStarted {
		return fmt.Errorf("state: artifact %q is already %s", id, cur)
	}
	if to == StatusNotStarted {
		return fmt.Errorf("state: cannot transition %q back to not_started", id)
	}
	s.statuses[id] = to
	return nil
}

// IDs returns every tracked artifact id, sorted.
func (s *State) IDs() []string {
	ids := make([]string, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InStatus returns the ids currently in the given status, sorted.
func (s *State) InStatus(status Status) []string {
	var ids []string
	for id, st := range s.statuses {
		if st == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// stateDoc is the persisted shape: four disjoint sets whose union is
// the plan's artifact set.
type stateDoc struct {
	RunID          string    `json:"run_id"`
	RunbookHash    string    `json:"runbook_hash"`
	NotStarted     []string  `json:"not_started"`
	Completed      []string  `json:"completed"`
	Failed         []string  `json:"failed"`
	Skipped        []string  `json:"skipped"`
	LastCheckpoint time.Time `json:"last_checkpoint"`
}

// MarshalJSON serialises the state as disjoint status sets.
func (s *State) MarshalJSON() ([]byte, error) {
	doc := stateDoc{
		RunID:          s.RunID,
		RunbookHash:    s.RunbookHash,
		NotStarted:     emptyNotNil(s.InStatus(StatusNotStarted)),
		Completed:      emptyNotNil(s.InStatus(StatusCompleted)),
		Failed:         emptyNotNil(s.InStatus(StatusFailed)),
		Skipped:        emptyNotNil(s.InStatus(StatusSkipped)),
		LastCheckpoint: s.LastCheckpoint,
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores a persisted state.
func (s *State) UnmarshalJSON(data []byte) error {
	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.RunID = doc.RunID
	s.RunbookHash = doc.RunbookHash
	s.LastCheckpoint = doc.LastCheckpoint
	s.statuses = make(map[string]Status)
	for _, id := range doc.NotStarted {
		s.statuses[id] = StatusNotStarted
	}
	for _, id := range doc.Completed {
		s.statuses[id] = StatusCompleted
	}
	for _, id := range doc.Failed {
		s.statuses[id] = StatusFailed
	}
	for _, id := range doc.Skipped {
		s.statuses[id] = StatusSkipped
	}
	return nil
}

func emptyNotNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
