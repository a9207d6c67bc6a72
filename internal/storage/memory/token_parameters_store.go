package memory

import (
	"context"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TokenParametersStore is an in-memory implementation of storage.TokenParametersStore.
type TokenParametersStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenParameters // keyed by mint
}

// NewTokenParametersStore creates a new in-memory parameters store.
func NewTokenParametersStore() *TokenParametersStore {
	return &TokenParametersStore{
		data: make(map[string]*domain.TokenParameters),
	}
}

// Upsert inserts or replaces parameters for a mint.
func (s *TokenParametersStore) Upsert(_ context.Context, p *domain.TokenParameters) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paramsCopy := *p
	s.data[p.Mint] = &paramsCopy
	return nil
}

// GetByMint retrieves parameters. Returns ErrNotFound if not exists.
func (s *TokenParametersStore) GetByMint(_ context.Context, mint string) (*domain.TokenParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	paramsCopy := *p
	return &paramsCopy, nil
}

var _ storage.TokenParametersStore = (*TokenParametersStore)(nil)
