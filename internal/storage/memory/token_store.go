package memory

import (
	"context"
	"sort"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token // keyed by mint
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Insert adds a new token. Returns ErrDuplicateKey if mint exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}
	tokenCopy := *t
	s.data[t.Mint] = &tokenCopy
	return nil
}

// GetByMint retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	tokenCopy := *t
	return &tokenCopy, nil
}

// ListRecent retrieves tokens ordered by created_at DESC.
func (s *TokenStore) ListRecent(_ context.Context, limit, offset int) ([]*domain.Token, error) {
	s.mu.RLock()
	all := s.sortedLocked(func(*domain.Token) bool { return true })
	s.mu.RUnlock()

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// ListByCreator retrieves tokens created by a user, ordered by created_at DESC.
func (s *TokenStore) ListByCreator(_ context.Context, creator string) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedLocked(func(t *domain.Token) bool { return t.Creator == creator }), nil
}

func (s *TokenStore) sortedLocked(keep func(*domain.Token) bool) []*domain.Token {
	var result []*domain.Token
	for _, t := range s.data {
		if keep(t) {
			tokenCopy := *t
			result = append(result, &tokenCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].Mint < result[j].Mint
	})
	return result
}

// UpdatePrice stores a pricing snapshot. Returns ErrNotFound if mint does not exist.
func (s *TokenStore) UpdatePrice(_ context.Context, mint string, q *domain.PriceQuote, marketCapUSD *float64) error {
	if q == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[mint]
	if !exists {
		return storage.ErrNotFound
	}
	usd := q.PriceUSD
	source := q.Source
	at := q.FetchedAt
	t.PriceUSD = &usd
	t.PriceSOL = q.PriceSOL
	t.PriceSource = &source
	t.PriceUpdatedAt = &at
	t.MarketCapUSD = marketCapUSD
	return nil
}

// UpdateStage moves the token to a later stage. Returns ErrInvalidInput on a backwards move.
func (s *TokenStore) UpdateStage(_ context.Context, mint string, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[mint]
	if !exists {
		return storage.ErrNotFound
	}
	if !t.Stage.CanTransition(stage) {
		return storage.ErrInvalidInput
	}
	t.Stage = stage
	return nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
