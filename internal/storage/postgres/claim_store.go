package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// ClaimStore implements storage.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *Pool
}

// NewClaimStore creates a new ClaimStore.
func NewClaimStore(pool *Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

const claimColumns = `id, user_id, amount, destination, status, signature, error, created_at, updated_at`

// Insert adds a new claim. Returns ErrDuplicateKey if id exists.
func (s *ClaimStore) Insert(ctx context.Context, c *domain.ReferralClaim) (err error) {
	defer track("referral_claims.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO referral_claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.UserID, int64(c.Amount), c.Destination, string(c.Status), c.Signature, c.Error, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetByID retrieves a claim. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByID(ctx context.Context, id string) (c *domain.ReferralClaim, err error) {
	defer track("referral_claims.get_by_id")(&err)

	c, err = scanClaim(s.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM referral_claims WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// Transition moves a claim from one status to another.
// Returns ErrConflict if the claim is not in status from.
func (s *ClaimStore) Transition(ctx context.Context, id string, from, to domain.ClaimStatus, signature, errMsg *string, at int64) (err error) {
	defer track("referral_claims.transition")(&err)

	tag, err := s.pool.Exec(ctx, `
		UPDATE referral_claims
		SET status = $3,
			signature = COALESCE($4, signature),
			error = COALESCE($5, error),
			updated_at = $6
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), signature, errMsg, at)
	if err != nil {
		return fmt.Errorf("transition claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return storage.ErrConflict
	}
	return nil
}

// ListByUser retrieves the latest claims of a user, newest first.
func (s *ClaimStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.ReferralClaim, error) {
	return s.query(ctx, "referral_claims.list_by_user", `
		SELECT `+claimColumns+` FROM referral_claims
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limitArg(limit))
}

// ListByStatusBefore retrieves claims in status updated at or before the cutoff (ms).
func (s *ClaimStore) ListByStatusBefore(ctx context.Context, status domain.ClaimStatus, before int64) ([]*domain.ReferralClaim, error) {
	return s.query(ctx, "referral_claims.list_by_status", `
		SELECT `+claimColumns+` FROM referral_claims
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
	`, string(status), before)
}

func (s *ClaimStore) query(ctx context.Context, op, query string, args ...any) (result []*domain.ReferralClaim, err error) {
	defer track(op)(&err)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return result, nil
}

func scanClaim(row pgx.Row) (*domain.ReferralClaim, error) {
	var (
		c      domain.ReferralClaim
		amount int64
		status string
	)
	err := row.Scan(&c.ID, &c.UserID, &amount, &c.Destination, &status, &c.Signature, &c.Error, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Amount = uint64(amount)
	c.Status = domain.ClaimStatus(status)
	return &c, nil
}
