// Package trade executes buys and sells through Jupiter from custodial wallets.
package trade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
)

// Trade defaults.
const (
	DefaultSlippageBps = 100
	DefaultFeeBps      = 100

	// TxReserveLamports covers network fees and the fee transfer.
	TxReserveLamports = 10_000

	tokenDecimals = 6
	maxListLimit  = 200
)

var (
	ErrInvalidTrade = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid trade")
	ErrLowBalance   = apierr.New(http.StatusBadRequest, apierr.CodeInsufficientFunds, "insufficient SOL balance")
	ErrSwapFailed   = apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "swap failed")
)

// WalletKeys resolves signing keys of custodial wallets.
type WalletKeys interface {
	Keypair(ctx context.Context, userID, walletID string) (*solana.Keypair, *domain.Wallet, error)
	Primary(ctx context.Context, userID string) (*domain.Wallet, error)
}

// Accruer credits the referrer of a trader with a share of the fee.
type Accruer interface {
	Accrue(ctx context.Context, refereeID string, feeLamports uint64) (uint64, error)
}

// Confirmer waits for a transaction to confirm.
type Confirmer interface {
	Await(ctx context.Context, signature string, timeout time.Duration) error
	Commitment() solana.Commitment
}

// Deps are the collaborators of Service.
type Deps struct {
	Trades         storage.TradeStore
	Analytics      storage.TradeAnalyticsStore // optional
	Wallets        WalletKeys
	Swapper        Swapper
	RPC            solana.RPCClient
	Confirmer      Confirmer
	Referrals      Accruer // optional
	Treasury       string  // platform fee recipient; empty accounts fees without transferring
	FeeBps         int
	ConfirmTimeout time.Duration
	Logger         *zap.Logger
}

// Service executes trades.
type Service struct {
	trades         storage.TradeStore
	analytics      storage.TradeAnalyticsStore
	wallets        WalletKeys
	swapper        Swapper
	rpc            solana.RPCClient
	confirmer      Confirmer
	referrals      Accruer
	treasury       *solana.PublicKey
	feeBps         int
	confirmTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a trade service.
func NewService(d Deps) (*Service, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.FeeBps < 0 || d.FeeBps > fees.MaxBps {
		return nil, fmt.Errorf("fee bps must be 0..%d", fees.MaxBps)
	}
	timeout := d.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Service{
		trades:         d.Trades,
		analytics:      d.Analytics,
		wallets:        d.Wallets,
		swapper:        d.Swapper,
		rpc:            d.RPC,
		confirmer:      d.Confirmer,
		referrals:      d.Referrals,
		feeBps:         d.FeeBps,
		confirmTimeout: timeout,
		logger:         logger.Named("trade"),
		now:            time.Now,
	}
	if d.Treasury != "" {
		pk, err := solana.ParsePublicKey(d.Treasury)
		if err != nil {
			return nil, fmt.Errorf("treasury: %w", err)
		}
		s.treasury = &pk
	}
	return s, nil
}

// Request is a buy or sell. Amount is lamports for buys and raw token
// units for sells.
type Request struct {
	WalletID    string `json:"wallet_id,omitempty"` // empty uses the primary wallet
	Mint        string `json:"mint"`
	Amount      uint64 `json:"amount"`
	SlippageBps int    `json:"slippage_bps,omitempty"`
}

// Result is the outcome of a trade. Trade is nil when confirmation timed out.
type Result struct {
	Trade          *domain.Trade `json:"trade,omitempty"`
	Signature      string        `json:"signature"`
	Confirmed      bool          `json:"confirmed"`
	PriceImpactPct float64       `json:"price_impact_pct"`
	ReferralShare  uint64        `json:"-"`
}

func (r *Request) validate() error {
	if err := solana.ValidateAddress(r.Mint); err != nil {
		return ErrInvalidTrade.WithMessage("invalid mint address")
	}
	if r.Mint == domain.WrappedSOLMint {
		return ErrInvalidTrade.WithMessage("mint must not be SOL")
	}
	if r.Amount == 0 {
		return ErrInvalidTrade.WithMessage("amount must be positive")
	}
	if r.SlippageBps == 0 {
		r.SlippageBps = DefaultSlippageBps
	}
	if r.SlippageBps < fees.MinSlippageBps || r.SlippageBps > fees.MaxSlippageBps {
		return ErrInvalidTrade.WithMessage(fmt.Sprintf("slippage must be %d..%d bps", fees.MinSlippageBps, fees.MaxSlippageBps))
	}
	return nil
}

// Buy spends Amount lamports on Mint. The platform fee is taken from the
// SOL leg before the swap.
func (s *Service) Buy(ctx context.Context, userID string, r Request) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	fee := fees.PlatformFee(r.Amount, s.feeBps)
	swapIn := r.Amount - fee
	if swapIn == 0 {
		return nil, ErrInvalidTrade.WithMessage("amount too small")
	}
	return s.execute(ctx, userID, r, domain.SideBuy, QuoteRequest{
		InputMint:   domain.WrappedSOLMint,
		OutputMint:  r.Mint,
		Amount:      swapIn,
		SlippageBps: r.SlippageBps,
	}, r.Amount+TxReserveLamports, func(*Quote) uint64 { return fee })
}

// Sell swaps Amount raw units of Mint into SOL. The platform fee is taken
// from the SOL received.
func (s *Service) Sell(ctx context.Context, userID string, r Request) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, userID, r, domain.SideSell, QuoteRequest{
		InputMint:   r.Mint,
		OutputMint:  domain.WrappedSOLMint,
		Amount:      r.Amount,
		SlippageBps: r.SlippageBps,
	}, TxReserveLamports, func(q *Quote) uint64 { return fees.PlatformFee(q.OutAmount, s.feeBps) })
}

func (s *Service) execute(ctx context.Context, userID string, r Request, side domain.Side,
	qr QuoteRequest, needLamports uint64, feeOf func(*Quote) uint64) (*Result, error) {

	kp, wallet, err := s.resolveWallet(ctx, userID, r.WalletID)
	if err != nil {
		return nil, err
	}
	balance, err := s.rpc.GetBalance(ctx, wallet.PublicKey)
	if err != nil {
		return nil, apierr.Upstream("balance lookup failed", err)
	}
	if balance < needLamports {
		return nil, ErrLowBalance.WithMessage(fmt.Sprintf("wallet needs at least %s SOL",
			fees.LamportsToSOL(needLamports).String()))
	}

	quote, err := s.swapper.Quote(ctx, qr)
	if err != nil {
		return nil, ErrSwapFailed.WithCause(err)
	}
	raw, err := s.swapper.SwapTransaction(ctx, quote, wallet.PublicKey)
	if err != nil {
		return nil, ErrSwapFailed.WithCause(err)
	}
	missing, err := solana.MissingSigners(raw)
	if err != nil {
		return nil, ErrSwapFailed.WithCause(err)
	}
	if len(missing) != 1 || missing[0] != wallet.PublicKey {
		return nil, ErrSwapFailed.WithMessage("swap transaction requires unexpected signers")
	}
	signed, err := solana.SignTransaction(raw, kp)
	if err != nil {
		return nil, ErrSwapFailed.WithCause(err)
	}

	log := s.logger.With(zap.String("user_id", userID), zap.String("mint", r.Mint), zap.String("side", string(side)))
	sig, err := s.rpc.SendTransaction(ctx, signed, &solana.SendOpts{PreflightCommitment: s.confirmer.Commitment()})
	if err != nil {
		log.Warn("swap transaction rejected", zap.Error(err))
		return nil, ErrSwapFailed.WithCause(err)
	}
	observability.RecordTransactionSent("swap_" + string(side))
	log = log.With(zap.String("signature", sig))

	res := &Result{Signature: sig, PriceImpactPct: quote.PriceImpactPct}
	err = s.confirmer.Await(ctx, sig, s.confirmTimeout)
	var failed *solana.TxFailedError
	switch {
	case err == nil:
	case errors.As(err, &failed):
		log.Warn("swap failed on chain", zap.Any("tx_err", failed.Err))
		return nil, ErrSwapFailed.WithCause(err)
	default:
		// Unconfirmed swaps are neither recorded nor charged.
		log.Warn("swap confirmation pending", zap.Error(err))
		return res, nil
	}
	res.Confirmed = true

	// The swap landed; bookkeeping must not be cut short by the caller.
	bg := context.WithoutCancel(ctx)
	fee := s.collectFee(bg, log, kp, feeOf(quote))

	t := &domain.Trade{
		ID:          uuid.NewString(),
		UserID:      userID,
		Wallet:      wallet.PublicKey,
		Mint:        r.Mint,
		Side:        side,
		FeeLamports: fee,
		Signature:   sig,
		CreatedAt:   s.now().UnixMilli(),
	}
	if side == domain.SideBuy {
		t.SOLAmount = r.Amount
		t.TokenAmount = quote.OutAmount
	} else {
		t.SOLAmount = quote.OutAmount
		t.TokenAmount = quote.InAmount
	}
	t.PriceSOL = priceSOL(quote, side)

	if err := s.trades.Insert(bg, t); err != nil {
		log.Error("store trade failed", zap.Error(err))
		return nil, fmt.Errorf("store trade: %w", err)
	}
	res.Trade = t
	if s.analytics != nil {
		if err := s.analytics.Record(bg, t); err != nil {
			log.Warn("record trade analytics failed", zap.Error(err))
		}
	}
	if s.referrals != nil && fee > 0 {
		share, err := s.referrals.Accrue(bg, userID, fee)
		if err != nil {
			log.Warn("referral accrual failed", zap.Error(err))
		}
		res.ReferralShare = share
	}

	observability.RecordTrade(string(side))
	log.Info("trade executed",
		zap.Uint64("sol_lamports", t.SOLAmount), zap.Uint64("tokens", t.TokenAmount), zap.Uint64("fee", fee))
	return res, nil
}

// collectFee transfers fee to the treasury and returns what was charged.
// A transfer that is rejected, fails on chain or stays unconfirmed charges nothing.
func (s *Service) collectFee(ctx context.Context, log *zap.Logger, kp *solana.Keypair, fee uint64) uint64 {
	if fee == 0 || s.treasury == nil {
		return fee
	}
	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		log.Warn("fee transfer skipped", zap.Error(err))
		return 0
	}
	tx, _, err := solana.BuildTransfer(kp, *s.treasury, fee, bh.Hash)
	if err != nil {
		log.Warn("fee transfer skipped", zap.Error(err))
		return 0
	}
	sig, err := s.rpc.SendTransaction(ctx, tx, &solana.SendOpts{PreflightCommitment: s.confirmer.Commitment()})
	if err != nil {
		log.Warn("fee transfer rejected", zap.Error(err))
		return 0
	}
	observability.RecordTransactionSent("platform_fee")
	if err := s.confirmer.Await(ctx, sig, s.confirmTimeout); err != nil {
		log.Warn("fee transfer not confirmed", zap.String("fee_signature", sig), zap.Error(err))
		return 0
	}
	log.Debug("platform fee collected", zap.String("fee_signature", sig), zap.Uint64("lamports", fee))
	return fee
}

func priceSOL(q *Quote, side domain.Side) float64 {
	sol, tokens := q.InAmount, q.OutAmount
	if side == domain.SideSell {
		sol, tokens = q.OutAmount, q.InAmount
	}
	if tokens == 0 {
		return 0
	}
	return (float64(sol) / fees.LamportsPerSOL) / (float64(tokens) / math.Pow10(tokenDecimals))
}

func (s *Service) resolveWallet(ctx context.Context, userID, walletID string) (*solana.Keypair, *domain.Wallet, error) {
	if walletID == "" {
		w, err := s.wallets.Primary(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		walletID = w.ID
	}
	return s.wallets.Keypair(ctx, userID, walletID)
}

// ListByUser returns the latest trades of a user.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	return s.trades.ListByUser(ctx, userID, clampLimit(limit))
}

// ListByMint returns the latest trades of a mint.
func (s *Service) ListByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error) {
	if err := solana.ValidateAddress(mint); err != nil {
		return nil, ErrInvalidTrade.WithMessage("invalid mint address")
	}
	return s.trades.ListByMint(ctx, mint, clampLimit(limit))
}

// Volume aggregates trading activity of a mint over the last window.
func (s *Service) Volume(ctx context.Context, mint string, window time.Duration) (*storage.VolumeStats, error) {
	if s.analytics == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, apierr.CodeInternal, "trade analytics disabled")
	}
	end := s.now()
	return s.analytics.Volume(ctx, mint, end.Add(-window).UnixMilli(), end.UnixMilli())
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return 50
	}
	return limit
}
