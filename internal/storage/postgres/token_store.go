package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	mint, creator, creator_key, name, symbol, description, metadata_uri, image_uri,
	decimals, platform, stage, signature,
	price_sol, price_usd, market_cap_usd, price_source, price_updated_at,
	created_at`

// Insert adds a new token. Returns ErrDuplicateKey if mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) (err error) {
	defer track("tokens.insert")(&err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		t.Mint, t.Creator, t.CreatorKey, t.Name, t.Symbol, t.Description, t.MetadataURI, t.ImageURI,
		t.Decimals, string(t.Platform), string(t.Stage), t.Signature,
		t.PriceSOL, t.PriceUSD, t.MarketCapUSD, t.PriceSource, t.PriceUpdatedAt,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (t *domain.Token, err error) {
	defer track("tokens.get_by_mint")(&err)

	t, err = scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE mint = $1`, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// ListRecent retrieves tokens ordered by created_at DESC.
func (s *TokenStore) ListRecent(ctx context.Context, limit, offset int) ([]*domain.Token, error) {
	return s.query(ctx, "tokens.list_recent", `
		SELECT `+tokenColumns+` FROM tokens
		ORDER BY created_at DESC, mint ASC
		LIMIT $1 OFFSET $2
	`, limitArg(limit), offset)
}

// ListByCreator retrieves tokens created by a user, ordered by created_at DESC.
func (s *TokenStore) ListByCreator(ctx context.Context, creator string) ([]*domain.Token, error) {
	return s.query(ctx, "tokens.list_by_creator", `
		SELECT `+tokenColumns+` FROM tokens
		WHERE creator = $1
		ORDER BY created_at DESC, mint ASC
	`, creator)
}

func (s *TokenStore) query(ctx context.Context, op, query string, args ...any) (result []*domain.Token, err error) {
	defer track(op)(&err)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}

// UpdatePrice stores a pricing snapshot. Returns ErrNotFound if mint does not exist.
func (s *TokenStore) UpdatePrice(ctx context.Context, mint string, q *domain.PriceQuote, marketCapUSD *float64) (err error) {
	defer track("tokens.update_price")(&err)

	if q == nil {
		return storage.ErrInvalidInput
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tokens
		SET price_usd = $2, price_sol = $3, market_cap_usd = $4, price_source = $5, price_updated_at = $6
		WHERE mint = $1
	`, mint, q.PriceUSD, q.PriceSOL, marketCapUSD, q.Source, q.FetchedAt)
	if err != nil {
		return fmt.Errorf("update token price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateStage moves the token to a later stage. Returns ErrInvalidInput on a backwards move.
func (s *TokenStore) UpdateStage(ctx context.Context, mint string, stage domain.Stage) (err error) {
	defer track("tokens.update_stage")(&err)

	current, err := s.GetByMint(ctx, mint)
	if err != nil {
		return err
	}
	if !current.Stage.CanTransition(stage) {
		return storage.ErrInvalidInput
	}

	// Guard on the observed stage so a concurrent move cannot be reverted.
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET stage = $3 WHERE mint = $1 AND stage = $2`,
		mint, string(current.Stage), string(stage))
	if err != nil {
		return fmt.Errorf("update token stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var (
		t        domain.Token
		platform string
		stage    string
	)
	err := row.Scan(
		&t.Mint, &t.Creator, &t.CreatorKey, &t.Name, &t.Symbol, &t.Description, &t.MetadataURI, &t.ImageURI,
		&t.Decimals, &platform, &stage, &t.Signature,
		&t.PriceSOL, &t.PriceUSD, &t.MarketCapUSD, &t.PriceSource, &t.PriceUpdatedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Platform = domain.Platform(platform)
	t.Stage = domain.Stage(stage)
	return &t, nil
}
