package memory

import (
	"context"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// ReferralStore is an in-memory implementation of storage.ReferralStore.
// Every balance mutation happens under the write lock, which gives the
// conditional updates the same semantics as the SQL implementation.
type ReferralStore struct {
	mu     sync.RWMutex
	byUser map[string]*domain.Referral
	codes  map[string]struct{}
}

// NewReferralStore creates a new in-memory referral store.
func NewReferralStore() *ReferralStore {
	return &ReferralStore{
		byUser: make(map[string]*domain.Referral),
		codes:  make(map[string]struct{}),
	}
}

// Insert adds a referral row. Returns ErrDuplicateKey if user or code exists.
func (s *ReferralStore) Insert(_ context.Context, r *domain.Referral) error {
	if r == nil || r.UserID == "" || r.Code == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUser[r.UserID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.codes[r.Code]; exists {
		return storage.ErrDuplicateKey
	}

	refCopy := *r
	s.byUser[r.UserID] = &refCopy
	s.codes[r.Code] = struct{}{}
	return nil
}

// GetByUserID retrieves a referral row. Returns ErrNotFound if not exists.
func (s *ReferralStore) GetByUserID(_ context.Context, userID string) (*domain.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byUser[userID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	refCopy := *r
	if r.LastClaimAt != nil {
		at := *r.LastClaimAt
		refCopy.LastClaimAt = &at
	}
	return &refCopy, nil
}

// IncrementReferredCount adds one to referred_count.
func (s *ReferralStore) IncrementReferredCount(_ context.Context, userID string) error {
	return s.mutate(userID, func(r *domain.Referral) error {
		r.ReferredCount++
		return nil
	})
}

// Accrue adds amount to pending and total_earned.
func (s *ReferralStore) Accrue(_ context.Context, userID string, amount uint64) error {
	return s.mutate(userID, func(r *domain.Referral) error {
		r.Pending += amount
		r.TotalEarned += amount
		return nil
	})
}

// ZeroPendingIf sets pending to 0 only if it still equals expected.
func (s *ReferralStore) ZeroPendingIf(_ context.Context, userID string, expected uint64) error {
	return s.mutate(userID, func(r *domain.Referral) error {
		if r.Pending != expected {
			return storage.ErrConflict
		}
		r.Pending = 0
		return nil
	})
}

// RestorePending adds amount back to pending after a failed payout.
func (s *ReferralStore) RestorePending(_ context.Context, userID string, amount uint64) error {
	return s.mutate(userID, func(r *domain.Referral) error {
		r.Pending += amount
		return nil
	})
}

// RecordClaimed adds amount to total_claimed and sets last_claim_at.
func (s *ReferralStore) RecordClaimed(_ context.Context, userID string, amount uint64, at int64) error {
	return s.mutate(userID, func(r *domain.Referral) error {
		r.TotalClaimed += amount
		claimedAt := at
		r.LastClaimAt = &claimedAt
		return nil
	})
}

func (s *ReferralStore) mutate(userID string, fn func(r *domain.Referral) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.byUser[userID]
	if !exists {
		return storage.ErrNotFound
	}
	return fn(r)
}

var _ storage.ReferralStore = (*ReferralStore)(nil)
