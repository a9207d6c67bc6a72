package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

const userColumns = `id, wallet_address, referral_code, referred_by, created_at`

// Insert adds a new user. Returns ErrDuplicateKey if id or referral code exists.
func (s *UserStore) Insert(ctx context.Context, u *domain.User) (err error) {
	defer track("users.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.WalletAddress, u.ReferralCode, u.ReferredBy, u.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByReferralCode retrieves the user owning a code. Returns ErrNotFound if not exists.
func (s *UserStore) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return s.getOne(ctx, "users.get_by_code", `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
}

func (s *UserStore) getOne(ctx context.Context, op, query string, arg string) (u *domain.User, err error) {
	defer track(op)(&err)

	u, err = scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetReferredBy binds the referrer once. Returns ErrConflict if already bound.
func (s *UserStore) SetReferredBy(ctx context.Context, userID, referrerID string) (err error) {
	defer track("users.set_referred_by")(&err)

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET referred_by = $2
		WHERE id = $1 AND referred_by IS NULL
	`, userID, referrerID)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("set referred_by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByID(ctx, userID); getErr != nil {
			return getErr
		}
		return storage.ErrConflict
	}
	return nil
}

// SetWalletAddress updates the primary wallet address.
func (s *UserStore) SetWalletAddress(ctx context.Context, userID, address string) (err error) {
	defer track("users.set_wallet")(&err)

	tag, err := s.pool.Exec(ctx, `UPDATE users SET wallet_address = $2 WHERE id = $1`, userID, address)
	if err != nil {
		return fmt.Errorf("set wallet address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.WalletAddress, &u.ReferralCode, &u.ReferredBy, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
