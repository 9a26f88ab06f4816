package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-process
// runs.
type MemoryStore struct {
	base
	mu   sync.RWMutex
	runs map[string]map[string][]byte
	meta map[string]RunMetadata
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		runs: make(map[string]map[string][]byte),
		meta: make(map[string]RunMetadata),
	}
	s.base.b = s
	return s
}

func (s *MemoryStore) put(_ context.Context, runID, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string][]byte)
		s.runs[runID] = run
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	run[key] = cp
	return nil
}

func (s *MemoryStore) get(_ context.Context, runID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.runs[runID][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, runID, key)
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (s *MemoryStore) exists(_ context.Context, runID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.runs[runID][key]
	return ok, nil
}

func (s *MemoryStore) del(_ context.Context, runID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs[runID], key)
	return nil
}

func (s *MemoryStore) list(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.runs[runID]))
	for k := range s.runs[runID] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) saveRun(_ context.Context, md RunMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[md.RunID] = md
	return nil
}

func (s *MemoryStore) listRuns(_ context.Context) ([]RunMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunMetadata, 0, len(s.meta))
	for _, md := range s.meta {
		out = append(out, md)
	}
	return out, nil
}
