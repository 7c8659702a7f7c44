package storage

import (
	"context"
	"sync"

	"neuraldrive/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	networks    map[string]model.NetworkRecord
	// reports is kept newest first.
	reports []model.GenerationReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.networks = make(map[string]model.NetworkRecord)
	s.reports = nil
	return nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, record model.NetworkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.networks[record.ID] = cloneNetworkRecord(record)
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, id string) (model.NetworkRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.NetworkRecord{}, false, ErrNotInitialized
	}
	record, ok := s.networks[id]
	if !ok {
		return model.NetworkRecord{}, false, nil
	}
	return cloneNetworkRecord(record), true, nil
}

func (s *MemoryStore) DeleteNetwork(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}
	_, ok := s.networks[id]
	delete(s.networks, id)
	return ok, nil
}

func (s *MemoryStore) SaveReport(_ context.Context, report model.GenerationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.reports = prependReport(s.reports, report)
	return nil
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (model.GenerationReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.GenerationReport{}, false, ErrNotInitialized
	}
	for _, report := range s.reports {
		if report.ID == id {
			return report, true, nil
		}
	}
	return model.GenerationReport{}, false, nil
}

func (s *MemoryStore) ListReports(_ context.Context, limit int) ([]model.GenerationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := append([]model.GenerationReport(nil), s.reports...)
	sortNewestFirst(out)
	return limitReports(out, limit), nil
}

func (s *MemoryStore) DeleteReport(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}
	var removed bool
	s.reports, removed = removeReport(s.reports, id)
	return removed, nil
}

func (s *MemoryStore) TrimReports(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return 0, ErrNotInitialized
	}
	var removed int
	s.reports, removed = trimReports(s.reports, keep)
	return removed, nil
}

// prependReport places report first, replacing any earlier report with the
// same id.
func prependReport(reports []model.GenerationReport, report model.GenerationReport) []model.GenerationReport {
	reports, _ = removeReport(reports, report.ID)
	out := make([]model.GenerationReport, 0, len(reports)+1)
	out = append(out, report)
	return append(out, reports...)
}

func removeReport(reports []model.GenerationReport, id string) ([]model.GenerationReport, bool) {
	filtered := reports[:0:0]
	for _, report := range reports {
		if report.ID != id {
			filtered = append(filtered, report)
		}
	}
	return filtered, len(filtered) != len(reports)
}

func trimReports(reports []model.GenerationReport, keep int) ([]model.GenerationReport, int) {
	if keep < 0 {
		keep = 0
	}
	if len(reports) <= keep {
		return reports, 0
	}
	sorted := append([]model.GenerationReport(nil), reports...)
	sortNewestFirst(sorted)
	return sorted[:keep], len(sorted) - keep
}
