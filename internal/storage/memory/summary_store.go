package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// SummaryStore is an in-memory implementation of storage.SummaryStore.
type SummaryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Summary // keyed by run_id
}

// NewSummaryStore creates a new in-memory summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{
		data: make(map[string]*domain.Summary),
	}
}

// Insert adds a summary. Returns ErrDuplicateKey if run_id exists.
func (s *SummaryStore) Insert(_ context.Context, sum *domain.Summary) error {
	if sum == nil || sum.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sum.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[sum.RunID] = copySummary(sum)
	return nil
}

// GetByRunID retrieves the summary of a run. Returns ErrNotFound if not exists.
func (s *SummaryStore) GetByRunID(_ context.Context, runID string) (*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySummary(sum), nil
}

// GetByRunIDs retrieves summaries for runIDs, ordered by run_id ASC.
func (s *SummaryStore) GetByRunIDs(_ context.Context, runIDs []string) ([]*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Summary
	seen := make(map[string]struct{}, len(runIDs))
	for _, id := range runIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if sum, ok := s.data[id]; ok {
			result = append(result, copySummary(sum))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

func copySummary(sum *domain.Summary) *domain.Summary {
	c := *sum
	c.Monthly = append([]domain.MonthlyRow(nil), sum.Monthly...)
	c.Clusters = append([]domain.ClusterRow(nil), sum.Clusters...)
	return &c
}

var _ storage.SummaryStore = (*SummaryStore)(nil)
