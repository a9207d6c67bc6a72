package api

import (
	"context"
	"sync"
	"time"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/storage"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/trade"
	"aqua-launchpad/internal/wallet"
)

type fakePrices struct {
	quotes map[string]*domain.PriceQuote
	err    error
}

func (f *fakePrices) Resolve(_ context.Context, mint string) (*domain.PriceQuote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.quotes[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return q, nil
}

func (f *fakePrices) History(_ context.Context, mint string, start, end int64) ([]*domain.PriceQuote, error) {
	var out []*domain.PriceQuote
	if q, ok := f.quotes[mint]; ok && q.FetchedAt >= start && q.FetchedAt <= end {
		out = append(out, q)
	}
	return out, nil
}

type fakeTokens struct {
	mu        sync.Mutex
	created   []token.CreateInput
	creators  []string
	createErr error
	tokens    map[string]*domain.Token
	fees      map[string]*token.CreatorFees
	updated   map[string]token.ParametersInput
}

func (f *fakeTokens) Create(_ context.Context, userID string, in token.CreateInput) (*token.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	f.creators = append(f.creators, userID)
	t := &domain.Token{Mint: "MintCreated", Creator: userID, Name: in.Name, Symbol: in.Symbol, Platform: in.Platform, Stage: domain.StageBonding}
	return &token.CreateResult{
		Token:      t,
		Parameters: &domain.TokenParameters{Mint: t.Mint, InitialBuyLamports: in.InitialBuyLamports},
		Signature:  "sigCreate",
		Confirmed:  true,
	}, nil
}

func (f *fakeTokens) Get(_ context.Context, mint string) (*token.Details, error) {
	t, ok := f.tokens[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &token.Details{Token: t, CreatorFees: f.fees[mint]}, nil
}

func (f *fakeTokens) List(_ context.Context, limit, offset int) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range f.tokens {
		out = append(out, t)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTokens) ListByCreator(_ context.Context, userID string) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range f.tokens {
		if t.Creator == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTokens) UpdateParameters(_ context.Context, userID, mint string, in token.ParametersInput) (*domain.TokenParameters, error) {
	t, ok := f.tokens[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if t.Creator != userID {
		return nil, token.ErrNotCreator
	}
	if f.updated == nil {
		f.updated = map[string]token.ParametersInput{}
	}
	f.updated[mint] = in
	p := &domain.TokenParameters{Mint: mint}
	if in.CreatorFeeBps != nil {
		p.CreatorFeeBps = *in.CreatorFeeBps
	}
	return p, nil
}

type fakeTrades struct {
	mu       sync.Mutex
	requests []trade.Request
	sides    []domain.Side
	result   *trade.Result
	err      error
	list     []*domain.Trade
	volume   *storage.VolumeStats
}

func (f *fakeTrades) exec(side domain.Side, r trade.Request) (*trade.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	f.sides = append(f.sides, side)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTrades) Buy(_ context.Context, _ string, r trade.Request) (*trade.Result, error) {
	return f.exec(domain.SideBuy, r)
}

func (f *fakeTrades) Sell(_ context.Context, _ string, r trade.Request) (*trade.Result, error) {
	return f.exec(domain.SideSell, r)
}

func (f *fakeTrades) ListByUser(_ context.Context, userID string, _ int) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for _, t := range f.list {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrades) ListByMint(_ context.Context, mint string, _ int) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for _, t := range f.list {
		if t.Mint == mint {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrades) Volume(_ context.Context, mint string, _ time.Duration) (*storage.VolumeStats, error) {
	if f.volume == nil {
		return nil, storage.ErrNotFound
	}
	v := *f.volume
	v.Mint = mint
	return &v, nil
}

type fakeWallets struct {
	mu        sync.Mutex
	wallets   map[string]*domain.Wallet
	withdrawn []uint64
	deleted   []string
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{wallets: map[string]*domain.Wallet{}}
}

func (f *fakeWallets) add(w *domain.Wallet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[w.ID] = w
}

func (f *fakeWallets) owned(userID, id string) (*domain.Wallet, error) {
	w, ok := f.wallets[id]
	if !ok || w.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return w, nil
}

func (f *fakeWallets) Generate(_ context.Context, userID, label string) (*domain.Wallet, error) {
	w := &domain.Wallet{ID: "w-gen", UserID: userID, PublicKey: "GenPub", Label: label, EncryptedSecret: "secret"}
	f.add(w)
	return w, nil
}

func (f *fakeWallets) Import(_ context.Context, userID, secret, label string) (*domain.Wallet, error) {
	if secret == "" {
		return nil, wallet.ErrInvalidSecret
	}
	w := &domain.Wallet{ID: "w-imp", UserID: userID, PublicKey: "ImpPub", Label: label, Imported: true, EncryptedSecret: "secret"}
	f.add(w)
	return w, nil
}

func (f *fakeWallets) List(_ context.Context, userID string) ([]*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Wallet{}
	for _, w := range f.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWallets) Primary(_ context.Context, userID string) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.wallets {
		if w.UserID == userID && w.IsPrimary {
			return w, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeWallets) SetPrimary(_ context.Context, userID, walletID string) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.owned(userID, walletID)
	if err != nil {
		return nil, err
	}
	for _, other := range f.wallets {
		if other.UserID == userID {
			other.IsPrimary = false
		}
	}
	w.IsPrimary = true
	return w, nil
}

func (f *fakeWallets) Delete(_ context.Context, userID, walletID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(userID, walletID); err != nil {
		return err
	}
	delete(f.wallets, walletID)
	f.deleted = append(f.deleted, walletID)
	return nil
}

func (f *fakeWallets) Balance(_ context.Context, userID, walletID string) (*wallet.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.owned(userID, walletID)
	if err != nil {
		return nil, err
	}
	return &wallet.Balance{WalletID: w.ID, PublicKey: w.PublicKey, Lamports: 1_500_000_000, SOL: "1.5"}, nil
}

func (f *fakeWallets) Withdraw(_ context.Context, userID, walletID, destination string, lamports uint64) (*wallet.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(userID, walletID); err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, wallet.ErrInvalidDestination
	}
	f.withdrawn = append(f.withdrawn, lamports)
	return &wallet.Withdrawal{Signature: "sigW", Lamports: lamports, Destination: destination, Confirmed: true}, nil
}

func (f *fakeWallets) History(_ context.Context, userID, walletID string, _ int) ([]*wallet.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(userID, walletID); err != nil {
		return nil, err
	}
	return []*wallet.HistoryEntry{}, nil
}

type fakeReferrals struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	attached    map[string]string
	claims      []string // destinations
	claimErr    error
	claimStatus domain.ClaimStatus
}

func newFakeReferrals() *fakeReferrals {
	return &fakeReferrals{users: map[string]*domain.User{}, attached: map[string]string{}, claimStatus: domain.ClaimCompleted}
}

func (f *fakeReferrals) EnsureUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		u = &domain.User{ID: userID, ReferralCode: "CODE-" + userID}
		f.users[userID] = u
	}
	return u, nil
}

func (f *fakeReferrals) Attach(_ context.Context, userID, code string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == "CODE-"+userID {
		return nil, referral.ErrSelfReferral
	}
	f.attached[userID] = code
	u := f.users[userID]
	ref := "referrer"
	u.ReferredBy = &ref
	return u, nil
}

func (f *fakeReferrals) Stats(_ context.Context, userID string) (*referral.Stats, error) {
	sig := "sigClaim"
	return &referral.Stats{
		Code:             "CODE-" + userID,
		PendingLamports:  20_000_000,
		PendingSOL:       "0.02",
		MinClaimLamports: 10_000_000,
		CanClaim:         true,
		RecentClaims: []*domain.ReferralClaim{
			{ID: "c1", UserID: userID, Amount: 50_000_000, Destination: "Dest", Status: domain.ClaimCompleted, Signature: &sig},
		},
	}, nil
}

func (f *fakeReferrals) Claim(_ context.Context, userID, destination string) (*domain.ReferralClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, destination)
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return &domain.ReferralClaim{ID: "c2", UserID: userID, Amount: 20_000_000, Destination: destination, Status: f.claimStatus}, nil
}
