// Package wallet manages custodial wallets: key generation and import,
// encrypted storage, balances, withdrawals and history.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
	"aqua-launchpad/internal/vault"
)

// FeeReserveLamports is kept back on withdrawals to pay the transaction fee.
const FeeReserveLamports = 5_000

// MaxWalletsPerUser bounds how many wallets one user may hold.
const MaxWalletsPerUser = 20

var (
	ErrInvalidSecret      = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid secret key")
	ErrInvalidDestination = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid destination address")
	ErrInsufficientFunds  = apierr.New(http.StatusBadRequest, apierr.CodeInsufficientFunds, "insufficient balance")
	ErrTooManyWallets     = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "wallet limit reached")
	ErrWalletExists       = apierr.New(http.StatusConflict, apierr.CodeConflict, "wallet already imported")
	ErrWithdrawFailed     = apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "withdrawal failed")
)

// Confirmer waits for a transaction to confirm.
type Confirmer interface {
	Await(ctx context.Context, signature string, timeout time.Duration) error
	Commitment() solana.Commitment
}

// Deps are the collaborators of Service.
type Deps struct {
	Wallets        storage.WalletStore
	Users          storage.UserStore
	Trades         storage.TradeStore
	Vault          *vault.Vault
	RPC            solana.RPCClient
	Confirmer      Confirmer
	ConfirmTimeout time.Duration
	Logger         *zap.Logger
}

// Service implements wallet operations.
type Service struct {
	wallets        storage.WalletStore
	users          storage.UserStore
	trades         storage.TradeStore
	vault          *vault.Vault
	rpc            solana.RPCClient
	confirmer      Confirmer
	confirmTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a wallet service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := d.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		wallets:        d.Wallets,
		users:          d.Users,
		trades:         d.Trades,
		vault:          d.Vault,
		rpc:            d.RPC,
		confirmer:      d.Confirmer,
		confirmTimeout: timeout,
		logger:         logger.Named("wallet"),
		now:            time.Now,
	}
}

// Generate creates a new keypair for userID.
func (s *Service) Generate(ctx context.Context, userID, label string) (*domain.Wallet, error) {
	kp, err := solana.NewKeypair()
	if err != nil {
		return nil, err
	}
	return s.add(ctx, userID, kp, label, false)
}

// Import stores a user-supplied secret key (base58 or JSON byte array).
func (s *Service) Import(ctx context.Context, userID, secret, label string) (*domain.Wallet, error) {
	kp, err := solana.ParseKeypair(strings.TrimSpace(secret))
	if err != nil {
		return nil, ErrInvalidSecret.WithCause(err)
	}
	return s.add(ctx, userID, kp, label, true)
}

func (s *Service) add(ctx context.Context, userID string, kp *solana.Keypair, label string, imported bool) (*domain.Wallet, error) {
	existing, err := s.wallets.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	if len(existing) >= MaxWalletsPerUser {
		return nil, ErrTooManyWallets
	}

	w := &domain.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		PublicKey: kp.Address(),
		Label:     strings.TrimSpace(label),
		IsPrimary: len(existing) == 0,
		Imported:  imported,
		CreatedAt: s.now().UnixMilli(),
	}
	if w.Label == "" {
		w.Label = fmt.Sprintf("Wallet %d", len(existing)+1)
	}
	w.EncryptedSecret, err = s.vault.Encrypt(w.ID, kp.Secret())
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	if err := s.wallets.Insert(ctx, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("store wallet: %w", err)
	}
	if w.IsPrimary {
		if err := s.users.SetWalletAddress(ctx, userID, w.PublicKey); err != nil {
			s.logger.Warn("set user wallet address failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.logger.Info("wallet added",
		zap.String("user_id", userID), zap.String("wallet_id", w.ID), zap.Bool("imported", imported))
	return w, nil
}

// List returns the wallets of userID, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

// Get returns a wallet owned by userID.
func (s *Service) Get(ctx context.Context, userID, walletID string) (*domain.Wallet, error) {
	return s.wallets.GetByID(ctx, userID, walletID)
}

// Primary returns the primary wallet of userID.
func (s *Service) Primary(ctx context.Context, userID string) (*domain.Wallet, error) {
	ws, err := s.wallets.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, w := range ws {
		if w.IsPrimary {
			return w, nil
		}
	}
	return nil, apierr.NotFound("no wallet, generate or import one first")
}

// SetPrimary makes walletID the primary wallet.
func (s *Service) SetPrimary(ctx context.Context, userID, walletID string) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.SetPrimary(ctx, userID, walletID); err != nil {
		return nil, err
	}
	if err := s.users.SetWalletAddress(ctx, userID, w.PublicKey); err != nil {
		return nil, fmt.Errorf("set user wallet address: %w", err)
	}
	w.IsPrimary = true
	return w, nil
}

// Delete removes a wallet. Deleting the primary promotes the oldest remaining one.
func (s *Service) Delete(ctx context.Context, userID, walletID string) error {
	w, err := s.wallets.GetByID(ctx, userID, walletID)
	if err != nil {
		return err
	}
	if err := s.wallets.Delete(ctx, userID, walletID); err != nil {
		return err
	}
	if !w.IsPrimary {
		return nil
	}
	rest, err := s.wallets.ListByUser(ctx, userID)
	if err != nil || len(rest) == 0 {
		return err
	}
	_, err = s.SetPrimary(ctx, userID, rest[0].ID)
	return err
}

// Keypair decrypts the signing key of a wallet.
func (s *Service) Keypair(ctx context.Context, userID, walletID string) (*solana.Keypair, *domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, userID, walletID)
	if err != nil {
		return nil, nil, err
	}
	secret, err := s.vault.Decrypt(w.ID, w.EncryptedSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt wallet %s: %w", w.ID, err)
	}
	kp, err := solana.KeypairFromSecret(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("load wallet %s: %w", w.ID, err)
	}
	if kp.Address() != w.PublicKey {
		return nil, nil, fmt.Errorf("wallet %s: stored key does not match public key", w.ID)
	}
	return kp, w, nil
}

// Balance is a wallet balance.
type Balance struct {
	WalletID  string `json:"wallet_id"`
	PublicKey string `json:"public_key"`
	Lamports  uint64 `json:"lamports"`
	SOL       string `json:"sol"`
}

// Balance reads the on-chain SOL balance of a wallet.
func (s *Service) Balance(ctx context.Context, userID, walletID string) (*Balance, error) {
	w, err := s.wallets.GetByID(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}
	lamports, err := s.rpc.GetBalance(ctx, w.PublicKey)
	if err != nil {
		return nil, apierr.Upstream("balance lookup failed", err)
	}
	return &Balance{WalletID: w.ID, PublicKey: w.PublicKey, Lamports: lamports, SOL: fees.LamportsToSOL(lamports).String()}, nil
}

// Withdrawal is the result of Withdraw.
type Withdrawal struct {
	Signature   string `json:"signature"`
	Lamports    uint64 `json:"lamports"`
	Destination string `json:"destination"`
	Confirmed   bool   `json:"confirmed"`
}

// Withdraw transfers lamports to destination. Zero withdraws everything
// above the fee reserve.
func (s *Service) Withdraw(ctx context.Context, userID, walletID, destination string, lamports uint64) (*Withdrawal, error) {
	to, err := solana.ParsePublicKey(destination)
	if err != nil {
		return nil, ErrInvalidDestination.WithCause(err)
	}
	kp, w, err := s.Keypair(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}
	if to == kp.PublicKey() {
		return nil, ErrInvalidDestination.WithMessage("destination is the source wallet")
	}

	balance, err := s.rpc.GetBalance(ctx, w.PublicKey)
	if err != nil {
		return nil, apierr.Upstream("balance lookup failed", err)
	}
	if balance <= FeeReserveLamports {
		return nil, ErrInsufficientFunds
	}
	available := balance - FeeReserveLamports
	if lamports == 0 {
		lamports = available
	}
	if lamports > available {
		return nil, ErrInsufficientFunds.WithMessage(
			fmt.Sprintf("insufficient balance: %s SOL available after fees", fees.LamportsToSOL(available).String()))
	}

	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, apierr.Upstream("blockhash lookup failed", err)
	}
	raw, sig, err := solana.BuildTransfer(kp, to, lamports, bh.Hash)
	if err != nil {
		return nil, err
	}
	if _, err := s.rpc.SendTransaction(ctx, raw, &solana.SendOpts{PreflightCommitment: s.confirmer.Commitment()}); err != nil {
		return nil, ErrWithdrawFailed.WithCause(err)
	}
	observability.RecordTransactionSent("withdraw")

	out := &Withdrawal{Signature: sig, Lamports: lamports, Destination: destination}
	log := s.logger.With(zap.String("wallet_id", w.ID), zap.String("signature", sig), zap.Uint64("lamports", lamports))

	err = s.confirmer.Await(ctx, sig, s.confirmTimeout)
	var failed *solana.TxFailedError
	switch {
	case err == nil:
		out.Confirmed = true
		log.Info("withdrawal confirmed")
	case errors.As(err, &failed):
		log.Warn("withdrawal failed on chain", zap.Any("tx_err", failed.Err))
		return nil, ErrWithdrawFailed.WithCause(err)
	default:
		log.Warn("withdrawal confirmation pending", zap.Error(err))
	}
	return out, nil
}

// HistoryEntry is one transaction touching a wallet.
type HistoryEntry struct {
	Signature string        `json:"signature"`
	Time      *int64        `json:"time,omitempty"` // ms
	Slot      int64         `json:"slot,omitempty"`
	Success   bool          `json:"success"`
	Memo      *string       `json:"memo,omitempty"`
	Trade     *domain.Trade `json:"trade,omitempty"`
}

// History merges on-chain signatures of the wallet with trades recorded for it.
func (s *Service) History(ctx context.Context, userID, walletID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	w, err := s.wallets.GetByID(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}
	sigs, err := s.rpc.GetSignaturesForAddress(ctx, w.PublicKey, &solana.SignaturesOpts{Limit: limit})
	if err != nil {
		return nil, apierr.Upstream("signature lookup failed", err)
	}
	trades, err := s.trades.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	bySig := make(map[string]*HistoryEntry, len(sigs)+len(trades))
	out := make([]*HistoryEntry, 0, len(sigs))
	for _, si := range sigs {
		e := &HistoryEntry{Signature: si.Signature, Slot: si.Slot, Success: si.Err == nil, Memo: si.Memo}
		if si.BlockTime != nil {
			ms := *si.BlockTime * 1000
			e.Time = &ms
		}
		bySig[si.Signature] = e
		out = append(out, e)
	}
	for _, t := range trades {
		if t.Wallet != w.PublicKey {
			continue
		}
		if e, ok := bySig[t.Signature]; ok {
			e.Trade = t
			continue
		}
		created := t.CreatedAt
		out = append(out, &HistoryEntry{Signature: t.Signature, Time: &created, Success: true, Trade: t})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return timeOf(out[i]) > timeOf(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func timeOf(e *HistoryEntry) int64 {
	if e.Time == nil {
		return 0
	}
	return *e.Time
}
