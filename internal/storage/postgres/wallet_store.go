package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `id, user_id, public_key, encrypted_secret, label, is_primary, imported, created_at`

// Insert adds a new wallet. Returns ErrDuplicateKey if the public key exists for the user.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) (err error) {
	defer track("wallets.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.UserID, w.PublicKey, w.EncryptedSecret, w.Label, w.IsPrimary, w.Imported, w.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet owned by userID. Returns ErrNotFound otherwise.
func (s *WalletStore) GetByID(ctx context.Context, userID, walletID string) (w *domain.Wallet, err error) {
	defer track("wallets.get_by_id")(&err)

	row := s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE id = $1 AND user_id = $2
	`, walletID, userID)
	w, err = scanWallet(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ListByUser retrieves all wallets of a user, ordered by created_at ASC.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) (result []*domain.Wallet, err error) {
	defer track("wallets.list_by_user")(&err)

	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}

// SetPrimary marks walletID as the only primary wallet of the user.
func (s *WalletStore) SetPrimary(ctx context.Context, userID, walletID string) (err error) {
	defer track("wallets.set_primary")(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE wallets SET is_primary = TRUE WHERE id = $1 AND user_id = $2`, walletID, userID)
	if err != nil {
		return fmt.Errorf("set primary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET is_primary = FALSE WHERE user_id = $1 AND id <> $2`, userID, walletID); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Delete(ctx context.Context, userID, walletID string) (err error) {
	defer track("wallets.delete")(&err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE id = $1 AND user_id = $2`, walletID, userID)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.PublicKey,
		&w.EncryptedSecret,
		&w.Label,
		&w.IsPrimary,
		&w.Imported,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
