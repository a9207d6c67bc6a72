package postgres

import (
	"context"
	"fmt"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TokenParametersStore implements storage.TokenParametersStore using PostgreSQL.
type TokenParametersStore struct {
	pool *Pool
}

// NewTokenParametersStore creates a new TokenParametersStore.
func NewTokenParametersStore(pool *Pool) *TokenParametersStore {
	return &TokenParametersStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenParametersStore = (*TokenParametersStore)(nil)

// Upsert inserts or replaces parameters for a mint.
func (s *TokenParametersStore) Upsert(ctx context.Context, p *domain.TokenParameters) (err error) {
	defer track("token_parameters.upsert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO token_parameters (
			mint, creator_fee_bps, dist_holders, dist_liquidity, dist_buyback, dist_creator,
			initial_buy_lamports, slippage_bps, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (mint) DO UPDATE SET
			creator_fee_bps = EXCLUDED.creator_fee_bps,
			dist_holders = EXCLUDED.dist_holders,
			dist_liquidity = EXCLUDED.dist_liquidity,
			dist_buyback = EXCLUDED.dist_buyback,
			dist_creator = EXCLUDED.dist_creator,
			initial_buy_lamports = EXCLUDED.initial_buy_lamports,
			slippage_bps = EXCLUDED.slippage_bps,
			updated_at = EXCLUDED.updated_at
	`,
		p.Mint, p.CreatorFeeBps,
		p.Distribution.Holders, p.Distribution.Liquidity, p.Distribution.Buyback, p.Distribution.Creator,
		int64(p.InitialBuyLamports), p.SlippageBps, p.UpdatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("upsert token parameters: %w", err)
	}
	return nil
}

// GetByMint retrieves parameters. Returns ErrNotFound if not exists.
func (s *TokenParametersStore) GetByMint(ctx context.Context, mint string) (p *domain.TokenParameters, err error) {
	defer track("token_parameters.get_by_mint")(&err)

	var (
		params     domain.TokenParameters
		initialBuy int64
	)
	err = s.pool.QueryRow(ctx, `
		SELECT mint, creator_fee_bps, dist_holders, dist_liquidity, dist_buyback, dist_creator,
			initial_buy_lamports, slippage_bps, updated_at
		FROM token_parameters WHERE mint = $1
	`, mint).Scan(
		&params.Mint, &params.CreatorFeeBps,
		&params.Distribution.Holders, &params.Distribution.Liquidity,
		&params.Distribution.Buyback, &params.Distribution.Creator,
		&initialBuy, &params.SlippageBps, &params.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token parameters: %w", err)
	}
	params.InitialBuyLamports = uint64(initialBuy)
	return &params, nil
}
