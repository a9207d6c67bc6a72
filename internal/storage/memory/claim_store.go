package memory

import (
	"context"
	"sort"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// ClaimStore is an in-memory implementation of storage.ClaimStore.
type ClaimStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ReferralClaim // keyed by claim id
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		data: make(map[string]*domain.ReferralClaim),
	}
}

// Insert adds a new claim. Returns ErrDuplicateKey if id exists.
func (s *ClaimStore) Insert(_ context.Context, c *domain.ReferralClaim) error {
	if c == nil || c.ID == "" || c.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[c.ID] = copyClaim(c)
	return nil
}

// GetByID retrieves a claim. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByID(_ context.Context, id string) (*domain.ReferralClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyClaim(c), nil
}

// Transition moves a claim from one status to another.
func (s *ClaimStore) Transition(_ context.Context, id string, from, to domain.ClaimStatus, signature, errMsg *string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != from {
		return storage.ErrConflict
	}
	c.Status = to
	if signature != nil {
		sig := *signature
		c.Signature = &sig
	}
	if errMsg != nil {
		msg := *errMsg
		c.Error = &msg
	}
	c.UpdatedAt = at
	return nil
}

// ListByUser retrieves the latest claims of a user, newest first.
func (s *ClaimStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.ReferralClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReferralClaim
	for _, c := range s.data {
		if c.UserID == userID {
			result = append(result, copyClaim(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByStatusBefore retrieves claims in status updated at or before the cutoff (ms).
func (s *ClaimStore) ListByStatusBefore(_ context.Context, status domain.ClaimStatus, before int64) ([]*domain.ReferralClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReferralClaim
	for _, c := range s.data {
		if c.Status == status && c.UpdatedAt <= before {
			result = append(result, copyClaim(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt < result[j].UpdatedAt
	})
	return result, nil
}

func copyClaim(c *domain.ReferralClaim) *domain.ReferralClaim {
	claimCopy := *c
	if c.Signature != nil {
		sig := *c.Signature
		claimCopy.Signature = &sig
	}
	if c.Error != nil {
		msg := *c.Error
		claimCopy.Error = &msg
	}
	return &claimCopy
}

var _ storage.ClaimStore = (*ClaimStore)(nil)
