package memory

import (
	"context"
	"sort"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// PriceHistoryStore is an in-memory implementation of storage.PriceHistoryStore.
type PriceHistoryStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PriceQuote // keyed by mint
}

// NewPriceHistoryStore creates a new in-memory price history store.
func NewPriceHistoryStore() *PriceHistoryStore {
	return &PriceHistoryStore{
		data: make(map[string][]*domain.PriceQuote),
	}
}

// Record appends a resolved quote.
func (s *PriceHistoryStore) Record(_ context.Context, q *domain.PriceQuote) error {
	if q == nil || q.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quoteCopy := *q
	s.data[q.Mint] = append(s.data[q.Mint], &quoteCopy)
	return nil
}

// RecordBatch appends several quotes. Nothing is stored if any quote is invalid.
func (s *PriceHistoryStore) RecordBatch(_ context.Context, quotes []*domain.PriceQuote) error {
	for _, q := range quotes {
		if q == nil || q.Mint == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		quoteCopy := *q
		s.data[q.Mint] = append(s.data[q.Mint], &quoteCopy)
	}
	return nil
}

// GetByTimeRange retrieves quotes for a mint within [start, end] (inclusive), ordered by fetched_at ASC.
func (s *PriceHistoryStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceQuote
	for _, q := range s.data[mint] {
		if q.FetchedAt >= start && q.FetchedAt <= end {
			quoteCopy := *q
			result = append(result, &quoteCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FetchedAt < result[j].FetchedAt
	})
	return result, nil
}

var _ storage.PriceHistoryStore = (*PriceHistoryStore)(nil)
