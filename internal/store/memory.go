package store

import (
	"context"
	"sync"

	"forcetrial/internal/analysis"
	"forcetrial/internal/trial"
)

// MemoryStore keeps trials in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	trials  map[string]trial.Snapshot
	reports map[string]analysis.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trials:  make(map[string]trial.Snapshot),
		reports: make(map[string]analysis.Report),
	}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) SaveTrial(ctx context.Context, snap trial.Snapshot) error {
	if err := ValidateID(snap.ID()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trials[snap.ID()] = trial.NewSnapshot(snap.ID(), snap.Samples())
	delete(s.reports, snap.ID())
	return nil
}

func (s *MemoryStore) LoadTrial(ctx context.Context, id string) (trial.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.trials[id]
	if !ok {
		return trial.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *MemoryStore) DeleteTrial(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hadTrial := s.trials[id]
	_, hadReport := s.reports[id]
	delete(s.trials, id)
	delete(s.reports, id)
	return hadTrial || hadReport, nil
}

func (s *MemoryStore) SaveReport(ctx context.Context, rep *analysis.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trials[rep.TrialID]; !ok {
		return ErrNotFound
	}
	cp := *rep
	cp.Peaks = append([]analysis.Peak(nil), rep.Peaks...)
	s.reports[rep.TrialID] = cp
	return nil
}

func (s *MemoryStore) LoadReport(ctx context.Context, id string) (*analysis.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	rep.Peaks = append([]analysis.Peak(nil), rep.Peaks...)
	return &rep, nil
}
