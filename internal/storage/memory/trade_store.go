package memory

import (
	"context"
	"sort"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu         sync.RWMutex
	data       []*domain.Trade
	ids        map[string]struct{}
	signatures map[string]struct{}
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		ids:        make(map[string]struct{}),
		signatures: make(map[string]struct{}),
	}
}

// Insert adds a trade. Returns ErrDuplicateKey if id or signature exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.signatures[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	tradeCopy := *t
	s.data = append(s.data, &tradeCopy)
	s.ids[t.ID] = struct{}{}
	s.signatures[t.Signature] = struct{}{}
	return nil
}

// ListByUser retrieves the latest trades of a user, newest first.
func (s *TradeStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Trade, error) {
	return s.filter(func(t *domain.Trade) bool { return t.UserID == userID }, limit), nil
}

// ListByMint retrieves the latest trades of a mint, newest first.
func (s *TradeStore) ListByMint(_ context.Context, mint string, limit int) ([]*domain.Trade, error) {
	return s.filter(func(t *domain.Trade) bool { return t.Mint == mint }, limit), nil
}

func (s *TradeStore) filter(keep func(*domain.Trade) bool, limit int) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if keep(t) {
			tradeCopy := *t
			result = append(result, &tradeCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

var _ storage.TradeStore = (*TradeStore)(nil)
