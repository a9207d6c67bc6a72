package memory

import (
	"context"
	"sort"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by wallet id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Insert adds a new wallet. Returns ErrDuplicateKey if id or (user, public key) exists.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" || w.UserID == "" || w.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.ID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.UserID == w.UserID && existing.PublicKey == w.PublicKey {
			return storage.ErrDuplicateKey
		}
	}

	walletCopy := *w
	s.data[w.ID] = &walletCopy
	return nil
}

// GetByID retrieves a wallet owned by userID. Returns ErrNotFound otherwise.
func (s *WalletStore) GetByID(_ context.Context, userID, walletID string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[walletID]
	if !exists || w.UserID != userID {
		return nil, storage.ErrNotFound
	}
	walletCopy := *w
	return &walletCopy, nil
}

// ListByUser retrieves all wallets of a user, ordered by created_at ASC.
func (s *WalletStore) ListByUser(_ context.Context, userID string) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Wallet
	for _, w := range s.data {
		if w.UserID == userID {
			walletCopy := *w
			result = append(result, &walletCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SetPrimary marks walletID as the only primary wallet of the user.
func (s *WalletStore) SetPrimary(_ context.Context, userID, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, exists := s.data[walletID]
	if !exists || target.UserID != userID {
		return storage.ErrNotFound
	}
	for _, w := range s.data {
		if w.UserID == userID {
			w.IsPrimary = w.ID == walletID
		}
	}
	return nil
}

// Delete removes a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Delete(_ context.Context, userID, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[walletID]
	if !exists || w.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.data, walletID)
	return nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
