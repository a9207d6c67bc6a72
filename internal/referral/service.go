// Package referral manages referral codes, commission accrual and payouts.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/lock"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/ratelimit"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
)

// Config holds claim policy.
type Config struct {
	ShareBps         int           // referrer's cut of the platform fee
	MinClaimLamports uint64        // smallest claimable pending balance
	Cooldown         time.Duration // minimum time between completed claims
	ClaimsPerMinute  float64       // per-user claim attempts
	ClaimBurst       int
	LockTTL          time.Duration // upper bound on a claim holding its lock
	ConfirmTimeout   time.Duration // how long Claim waits for confirmation
	DropAfter        time.Duration // a submitted claim unknown to the chain this long is compensated
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ShareBps:         5000,
		MinClaimLamports: 10_000_000, // 0.01 SOL
		Cooldown:         time.Hour,
		ClaimsPerMinute:  3,
		ClaimBurst:       3,
		LockTTL:          2 * time.Minute,
		ConfirmTimeout:   60 * time.Second,
		DropAfter:        5 * time.Minute,
	}
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	if c.ShareBps < 0 || c.ShareBps > fees.MaxBps {
		return fmt.Errorf("referral share must be 0..%d bps, got %d", fees.MaxBps, c.ShareBps)
	}
	if c.ClaimsPerMinute <= 0 {
		return errors.New("claims per minute must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		return errors.New("confirm timeout must be positive")
	}
	if c.LockTTL <= c.ConfirmTimeout {
		return errors.New("lock ttl must exceed confirm timeout")
	}
	if c.DropAfter < c.ConfirmTimeout {
		return errors.New("drop-after must be at least the confirm timeout")
	}
	return nil
}

// Confirmer waits for transactions. *solana.Confirmer implements it.
type Confirmer interface {
	Await(ctx context.Context, signature string, timeout time.Duration) error
	Status(ctx context.Context, signature string) (*solana.SignatureStatus, error)
	Commitment() solana.Commitment
}

// Deps are the collaborators of Service.
type Deps struct {
	Users     storage.UserStore
	Referrals storage.ReferralStore
	Claims    storage.ClaimStore
	RPC       solana.RPCClient
	Confirmer Confirmer
	Locker    lock.Locker
	Payout    *solana.Keypair // nil disables claims
	Logger    *zap.Logger
}

// Service implements referral attach, accrual, stats and claims.
type Service struct {
	users     storage.UserStore
	referrals storage.ReferralStore
	claims    storage.ClaimStore
	rpc       solana.RPCClient
	confirmer Confirmer
	locker    lock.Locker
	payout    *solana.Keypair
	limiter   *ratelimit.Keyed
	cfg       Config
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a referral service.
func NewService(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.NewMemory()
	}
	return &Service{
		users:     d.Users,
		referrals: d.Referrals,
		claims:    d.Claims,
		rpc:       d.RPC,
		confirmer: d.Confirmer,
		locker:    locker,
		payout:    d.Payout,
		limiter:   ratelimit.PerMinute(cfg.ClaimsPerMinute, cfg.ClaimBurst),
		cfg:       cfg,
		logger:    logger.Named("referral"),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// EnsureUser returns the user, creating it with its own referral code on first sight.
func (s *Service) EnsureUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := s.now().UnixMilli()
	for attempt := 0; attempt < 5; attempt++ {
		u = &domain.User{ID: userID, ReferralCode: CodeFor(userID, attempt), CreatedAt: now}
		err = s.users.Insert(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// Either a concurrent request created the user or the code collided.
		if existing, getErr := s.users.GetByID(ctx, userID); getErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	err = s.referrals.Insert(ctx, &domain.Referral{UserID: userID, Code: u.ReferralCode, UpdatedAt: now})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("create referral account: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", userID), zap.String("code", u.ReferralCode))
	return u, nil
}

// Attach binds userID to the owner of code. A user can be referred once.
func (s *Service) Attach(ctx context.Context, userID, code string) (*domain.User, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrUnknownCode
	}
	user, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ReferredBy != nil {
		return nil, ErrAlreadyReferred
	}

	referrer, err := s.users.GetByReferralCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == userID {
		return nil, ErrSelfReferral
	}
	if referrer.ReferredBy != nil && *referrer.ReferredBy == userID {
		return nil, ErrCircularReferral
	}

	if err := s.users.SetReferredBy(ctx, userID, referrer.ID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyReferred
		}
		return nil, fmt.Errorf("set referrer: %w", err)
	}
	if err := s.referrals.IncrementReferredCount(ctx, referrer.ID); err != nil {
		s.logger.Error("increment referred count failed",
			zap.String("referrer", referrer.ID), zap.Error(err))
	}

	s.logger.Info("referral attached", zap.String("user_id", userID), zap.String("referrer", referrer.ID))
	user.ReferredBy = &referrer.ID
	return user, nil
}

// Accrue credits the referrer of refereeID with its share of feeLamports.
// Returns the credited amount; zero when the user has no referrer.
func (s *Service) Accrue(ctx context.Context, refereeID string, feeLamports uint64) (uint64, error) {
	user, err := s.users.GetByID(ctx, refereeID)
	if err != nil {
		return 0, fmt.Errorf("get referee: %w", err)
	}
	if user.ReferredBy == nil {
		return 0, nil
	}
	share := fees.ReferralShare(feeLamports, s.cfg.ShareBps)
	if share == 0 {
		return 0, nil
	}
	if err := s.referrals.Accrue(ctx, *user.ReferredBy, share); err != nil {
		return 0, fmt.Errorf("accrue referral: %w", err)
	}
	observability.RecordAccrual(share)
	s.logger.Debug("referral accrued",
		zap.String("referrer", *user.ReferredBy), zap.String("referee", refereeID), zap.Uint64("lamports", share))
	return share, nil
}

// Stats is the referral dashboard of a user.
type Stats struct {
	Code             string                  `json:"code"`
	ReferredBy       *string                 `json:"referred_by,omitempty"`
	ReferredCount    int                     `json:"referred_count"`
	PendingLamports  uint64                  `json:"pending_lamports"`
	PendingSOL       string                  `json:"pending_sol"`
	TotalEarned      uint64                  `json:"total_earned_lamports"`
	TotalClaimed     uint64                  `json:"total_claimed_lamports"`
	LastClaimAt      *int64                  `json:"last_claim_at,omitempty"`
	NextClaimAt      *int64                  `json:"next_claim_at,omitempty"`
	MinClaimLamports uint64                  `json:"min_claim_lamports"`
	CanClaim         bool                    `json:"can_claim"`
	RecentClaims     []*domain.ReferralClaim `json:"recent_claims"`
}

// recentClaims is how many claims Stats returns.
const recentClaims = 10

// Stats returns the referral summary of userID.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	user, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ref, err := s.referrals.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get referral account: %w", err)
	}
	claims, err := s.claims.ListByUser(ctx, userID, recentClaims)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	st := &Stats{
		Code:             ref.Code,
		ReferredBy:       user.ReferredBy,
		ReferredCount:    ref.ReferredCount,
		PendingLamports:  ref.Pending,
		PendingSOL:       fees.LamportsToSOL(ref.Pending).String(),
		TotalEarned:      ref.TotalEarned,
		TotalClaimed:     ref.TotalClaimed,
		LastClaimAt:      ref.LastClaimAt,
		MinClaimLamports: s.cfg.MinClaimLamports,
		RecentClaims:     claims,
	}
	cooling := false
	if ref.LastClaimAt != nil {
		next := *ref.LastClaimAt + s.cfg.Cooldown.Milliseconds()
		st.NextClaimAt = &next
		cooling = s.now().UnixMilli() < next
	}
	st.CanClaim = s.payout != nil && ref.Pending > 0 && ref.Pending >= s.cfg.MinClaimLamports && !cooling
	return st, nil
}

// CleanupLimiter drops idle per-user limiters.
func (s *Service) CleanupLimiter(idle time.Duration) int {
	return s.limiter.Cleanup(idle)
}
