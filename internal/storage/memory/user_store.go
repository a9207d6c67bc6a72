package memory

import (
	"context"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.User
	byCode map[string]string // referral code -> user id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:   make(map[string]*domain.User),
		byCode: make(map[string]string),
	}
}

// Insert adds a new user. Returns ErrDuplicateKey if id or referral code exists.
func (s *UserStore) Insert(_ context.Context, u *domain.User) error {
	if u == nil || u.ID == "" || u.ReferralCode == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[u.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byCode[u.ReferralCode]; exists {
		return storage.ErrDuplicateKey
	}

	userCopy := *u
	s.byID[u.ID] = &userCopy
	s.byCode[u.ReferralCode] = u.ID
	return nil
}

// GetByID retrieves a user. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// GetByReferralCode retrieves the user owning a code. Returns ErrNotFound if not exists.
func (s *UserStore) GetByReferralCode(_ context.Context, code string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byCode[code]
	if !exists {
		return nil, storage.ErrNotFound
	}
	userCopy := *s.byID[id]
	return &userCopy, nil
}

// SetReferredBy binds the referrer once. Returns ErrConflict if already bound.
func (s *UserStore) SetReferredBy(_ context.Context, userID, referrerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.byID[userID]
	if !exists {
		return storage.ErrNotFound
	}
	if u.ReferredBy != nil {
		return storage.ErrConflict
	}
	ref := referrerID
	u.ReferredBy = &ref
	return nil
}

// SetWalletAddress updates the primary wallet address.
func (s *UserStore) SetWalletAddress(_ context.Context, userID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.byID[userID]
	if !exists {
		return storage.ErrNotFound
	}
	addr := address
	u.WalletAddress = &addr
	return nil
}

var _ storage.UserStore = (*UserStore)(nil)
