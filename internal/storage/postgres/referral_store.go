package postgres

import (
	"context"
	"fmt"
	"time"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// ReferralStore implements storage.ReferralStore using PostgreSQL.
// Balance changes are single-statement updates; ZeroPendingIf is the
// optimistic lock taken before a payout.
type ReferralStore struct {
	pool *Pool
}

// NewReferralStore creates a new ReferralStore.
func NewReferralStore(pool *Pool) *ReferralStore {
	return &ReferralStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReferralStore = (*ReferralStore)(nil)

// Insert adds a referral row. Returns ErrDuplicateKey if user or code exists.
func (s *ReferralStore) Insert(ctx context.Context, r *domain.Referral) (err error) {
	defer track("referrals.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO referrals (
			user_id, code, referred_count, pending, total_earned, total_claimed, last_claim_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.UserID, r.Code, r.ReferredCount, int64(r.Pending), int64(r.TotalEarned), int64(r.TotalClaimed),
		r.LastClaimAt, r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

// GetByUserID retrieves a referral row. Returns ErrNotFound if not exists.
func (s *ReferralStore) GetByUserID(ctx context.Context, userID string) (r *domain.Referral, err error) {
	defer track("referrals.get_by_user")(&err)

	var (
		ref                           domain.Referral
		pending, earned, claimedTotal int64
	)
	err = s.pool.QueryRow(ctx, `
		SELECT user_id, code, referred_count, pending, total_earned, total_claimed, last_claim_at, updated_at
		FROM referrals WHERE user_id = $1
	`, userID).Scan(
		&ref.UserID, &ref.Code, &ref.ReferredCount, &pending, &earned, &claimedTotal, &ref.LastClaimAt, &ref.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	ref.Pending = uint64(pending)
	ref.TotalEarned = uint64(earned)
	ref.TotalClaimed = uint64(claimedTotal)
	return &ref, nil
}

// IncrementReferredCount adds one to referred_count.
func (s *ReferralStore) IncrementReferredCount(ctx context.Context, userID string) error {
	return s.update(ctx, "referrals.increment_count", `
		UPDATE referrals SET referred_count = referred_count + 1, updated_at = $2 WHERE user_id = $1
	`, userID, nowMs())
}

// Accrue adds amount to pending and total_earned.
func (s *ReferralStore) Accrue(ctx context.Context, userID string, amount uint64) error {
	return s.update(ctx, "referrals.accrue", `
		UPDATE referrals
		SET pending = pending + $2, total_earned = total_earned + $2, updated_at = $3
		WHERE user_id = $1
	`, userID, int64(amount), nowMs())
}

// ZeroPendingIf sets pending to 0 only if it still equals expected.
// Returns ErrConflict if the balance changed.
func (s *ReferralStore) ZeroPendingIf(ctx context.Context, userID string, expected uint64) (err error) {
	defer track("referrals.zero_pending_if")(&err)

	tag, err := s.pool.Exec(ctx, `
		UPDATE referrals SET pending = 0, updated_at = $3
		WHERE user_id = $1 AND pending = $2
	`, userID, int64(expected), nowMs())
	if err != nil {
		return fmt.Errorf("zero pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByUserID(ctx, userID); getErr != nil {
			return getErr
		}
		return storage.ErrConflict
	}
	return nil
}

// RestorePending adds amount back to pending after a failed payout.
func (s *ReferralStore) RestorePending(ctx context.Context, userID string, amount uint64) error {
	return s.update(ctx, "referrals.restore_pending", `
		UPDATE referrals SET pending = pending + $2, updated_at = $3 WHERE user_id = $1
	`, userID, int64(amount), nowMs())
}

// RecordClaimed adds amount to total_claimed and sets last_claim_at.
func (s *ReferralStore) RecordClaimed(ctx context.Context, userID string, amount uint64, at int64) error {
	return s.update(ctx, "referrals.record_claimed", `
		UPDATE referrals
		SET total_claimed = total_claimed + $2, last_claim_at = $3, updated_at = $3
		WHERE user_id = $1
	`, userID, int64(amount), at)
}

func (s *ReferralStore) update(ctx context.Context, op, query string, args ...any) (err error) {
	defer track(op)(&err)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
