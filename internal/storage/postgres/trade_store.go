package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `id, user_id, wallet, mint, side, sol_amount, token_amount, price_sol, fee_lamports, signature, created_at`

// Insert adds a trade. Returns ErrDuplicateKey if id or signature exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	defer track("trades.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.UserID, t.Wallet, t.Mint, string(t.Side), int64(t.SOLAmount), int64(t.TokenAmount),
		t.PriceSOL, int64(t.FeeLamports), t.Signature, t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListByUser retrieves the latest trades of a user, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	return s.query(ctx, "trades.list_by_user", `
		SELECT `+tradeColumns+` FROM trades WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limitArg(limit))
}

// ListByMint retrieves the latest trades of a mint, newest first.
func (s *TradeStore) ListByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error) {
	return s.query(ctx, "trades.list_by_mint", `
		SELECT `+tradeColumns+` FROM trades WHERE mint = $1 ORDER BY created_at DESC LIMIT $2
	`, mint, limitArg(limit))
}

func (s *TradeStore) query(ctx context.Context, op, query string, args ...any) (result []*domain.Trade, err error) {
	defer track(op)(&err)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return result, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t                      domain.Trade
		side                   string
		solAmount, tokenAmount int64
		fee                    int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Wallet, &t.Mint, &side, &solAmount, &tokenAmount,
		&t.PriceSOL, &fee, &t.Signature, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.SOLAmount = uint64(solAmount)
	t.TokenAmount = uint64(tokenAmount)
	t.FeeLamports = uint64(fee)
	return &t, nil
}
