package storage

import (
	"context"

	"aqua-launchpad/internal/domain"
)

// UserStore provides access to users storage.
type UserStore interface {
	// Insert adds a new user. Returns ErrDuplicateKey if id or referral code exists.
	Insert(ctx context.Context, u *domain.User) error

	// GetByID retrieves a user. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByReferralCode retrieves the user owning a code. Returns ErrNotFound if not exists.
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)

	// SetReferredBy binds the referrer once. Returns ErrConflict if already bound.
	SetReferredBy(ctx context.Context, userID, referrerID string) error

	// SetWalletAddress updates the primary wallet address.
	SetWalletAddress(ctx context.Context, userID, address string) error
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if the public key exists for the user.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByID retrieves a wallet owned by userID. Returns ErrNotFound otherwise.
	GetByID(ctx context.Context, userID, walletID string) (*domain.Wallet, error)

	// ListByUser retrieves all wallets of a user, ordered by created_at ASC.
	ListByUser(ctx context.Context, userID string) ([]*domain.Wallet, error)

	// SetPrimary marks walletID as the only primary wallet of the user.
	SetPrimary(ctx context.Context, userID, walletID string) error

	// Delete removes a wallet. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, userID, walletID string) error
}

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if mint exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// ListRecent retrieves tokens ordered by created_at DESC. A limit <= 0 returns all.
	ListRecent(ctx context.Context, limit, offset int) ([]*domain.Token, error)

	// ListByCreator retrieves tokens created by a user, ordered by created_at DESC.
	ListByCreator(ctx context.Context, creator string) ([]*domain.Token, error)

	// UpdatePrice stores a pricing snapshot. Returns ErrNotFound if mint does not exist.
	UpdatePrice(ctx context.Context, mint string, q *domain.PriceQuote, marketCapUSD *float64) error

	// UpdateStage moves the token to a later stage. Returns ErrInvalidInput on a backwards move.
	UpdateStage(ctx context.Context, mint string, stage domain.Stage) error
}

// TokenParametersStore provides access to token_parameters storage.
type TokenParametersStore interface {
	// Upsert inserts or replaces parameters for a mint.
	Upsert(ctx context.Context, p *domain.TokenParameters) error

	// GetByMint retrieves parameters. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenParameters, error)
}

// ReferralStore provides access to referrals storage.
// Balance mutations are conditional so concurrent writers cannot lose updates.
type ReferralStore interface {
	// Insert adds a referral row. Returns ErrDuplicateKey if user or code exists.
	Insert(ctx context.Context, r *domain.Referral) error

	// GetByUserID retrieves a referral row. Returns ErrNotFound if not exists.
	GetByUserID(ctx context.Context, userID string) (*domain.Referral, error)

	// IncrementReferredCount adds one to referred_count.
	IncrementReferredCount(ctx context.Context, userID string) error

	// Accrue adds amount to pending and total_earned.
	Accrue(ctx context.Context, userID string, amount uint64) error

	// ZeroPendingIf sets pending to 0 only if it still equals expected.
	// Returns ErrConflict if the balance changed.
	ZeroPendingIf(ctx context.Context, userID string, expected uint64) error

	// RestorePending adds amount back to pending after a failed payout.
	RestorePending(ctx context.Context, userID string, amount uint64) error

	// RecordClaimed adds amount to total_claimed and sets last_claim_at.
	RecordClaimed(ctx context.Context, userID string, amount uint64, at int64) error
}

// ClaimStore provides access to referral_claims storage.
type ClaimStore interface {
	// Insert adds a new claim. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, c *domain.ReferralClaim) error

	// GetByID retrieves a claim. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.ReferralClaim, error)

	// Transition moves a claim from one status to another.
	// Returns ErrConflict if the claim is not in status from.
	Transition(ctx context.Context, id string, from, to domain.ClaimStatus, signature, errMsg *string, at int64) error

	// ListByUser retrieves the latest claims of a user, newest first. A limit <= 0 returns all.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.ReferralClaim, error)

	// ListByStatusBefore retrieves claims in status updated at or before the cutoff (ms).
	ListByStatusBefore(ctx context.Context, status domain.ClaimStatus, before int64) ([]*domain.ReferralClaim, error)
}

// TradeStore provides access to trades storage.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if id or signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// ListByUser retrieves the latest trades of a user, newest first. A limit <= 0 returns all.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error)

	// ListByMint retrieves the latest trades of a mint, newest first. A limit <= 0 returns all.
	ListByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error)
}

// PriceHistoryStore provides access to price_history analytics storage.
type PriceHistoryStore interface {
	// Record appends a resolved quote.
	Record(ctx context.Context, q *domain.PriceQuote) error

	// RecordBatch appends several quotes in one write.
	RecordBatch(ctx context.Context, quotes []*domain.PriceQuote) error

	// GetByTimeRange retrieves quotes for a mint within [start, end] (inclusive), ordered by fetched_at ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceQuote, error)
}

// VolumeStats summarises trading activity for a mint over a window.
type VolumeStats struct {
	Mint        string
	Trades      uint64
	Buys        uint64
	Sells       uint64
	VolumeSOL   uint64 // lamports
	FeesSOL     uint64 // lamports
	UniqueUsers uint64
}

// TradeAnalyticsStore provides access to trade_events analytics storage.
type TradeAnalyticsStore interface {
	// Record appends an executed trade.
	Record(ctx context.Context, t *domain.Trade) error

	// Volume aggregates trades for a mint within [start, end] (inclusive).
	Volume(ctx context.Context, mint string, start, end int64) (*VolumeStats, error)
}
