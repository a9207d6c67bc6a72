package api

import (
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/wallet"
)

// JSON views of domain records. Wallet secrets never leave the service.

type userView struct {
	ID            string  `json:"id"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	ReferralCode  string  `json:"referral_code"`
	ReferredBy    *string `json:"referred_by,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:            u.ID,
		WalletAddress: u.WalletAddress,
		ReferralCode:  u.ReferralCode,
		ReferredBy:    u.ReferredBy,
		CreatedAt:     u.CreatedAt,
	}
}

type walletView struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
	Label     string `json:"label"`
	IsPrimary bool   `json:"is_primary"`
	Imported  bool   `json:"imported"`
	CreatedAt int64  `json:"created_at"`
}

func newWalletView(w *domain.Wallet) walletView {
	return walletView{
		ID:        w.ID,
		PublicKey: w.PublicKey,
		Label:     w.Label,
		IsPrimary: w.IsPrimary,
		Imported:  w.Imported,
		CreatedAt: w.CreatedAt,
	}
}

func newWalletViews(ws []*domain.Wallet) []walletView {
	out := make([]walletView, 0, len(ws))
	for _, w := range ws {
		out = append(out, newWalletView(w))
	}
	return out
}

type tokenView struct {
	Mint           string   `json:"mint"`
	Creator        string   `json:"creator"`
	CreatorKey     string   `json:"creator_key"`
	Name           string   `json:"name"`
	Symbol         string   `json:"symbol"`
	Description    string   `json:"description,omitempty"`
	MetadataURI    string   `json:"metadata_uri"`
	ImageURI       string   `json:"image_uri,omitempty"`
	Decimals       int      `json:"decimals"`
	Platform       string   `json:"platform"`
	Stage          string   `json:"stage"`
	Signature      string   `json:"signature"`
	PriceSOL       *float64 `json:"price_sol,omitempty"`
	PriceUSD       *float64 `json:"price_usd,omitempty"`
	MarketCapUSD   *float64 `json:"market_cap_usd,omitempty"`
	PriceSource    *string  `json:"price_source,omitempty"`
	PriceUpdatedAt *int64   `json:"price_updated_at,omitempty"`
	CreatedAt      int64    `json:"created_at"`
}

func newTokenView(t *domain.Token) tokenView {
	return tokenView{
		Mint:           t.Mint,
		Creator:        t.Creator,
		CreatorKey:     t.CreatorKey,
		Name:           t.Name,
		Symbol:         t.Symbol,
		Description:    t.Description,
		MetadataURI:    t.MetadataURI,
		ImageURI:       t.ImageURI,
		Decimals:       t.Decimals,
		Platform:       string(t.Platform),
		Stage:          string(t.Stage),
		Signature:      t.Signature,
		PriceSOL:       t.PriceSOL,
		PriceUSD:       t.PriceUSD,
		MarketCapUSD:   t.MarketCapUSD,
		PriceSource:    t.PriceSource,
		PriceUpdatedAt: t.PriceUpdatedAt,
		CreatedAt:      t.CreatedAt,
	}
}

func newTokenViews(ts []*domain.Token) []tokenView {
	out := make([]tokenView, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTokenView(t))
	}
	return out
}

type parametersView struct {
	Mint               string                 `json:"mint"`
	CreatorFeeBps      int                    `json:"creator_fee_bps"`
	Distribution       domain.FeeDistribution `json:"distribution"`
	InitialBuyLamports uint64                 `json:"initial_buy_lamports"`
	SlippageBps        int                    `json:"slippage_bps"`
	UpdatedAt          int64                  `json:"updated_at"`
}

func newParametersView(p *domain.TokenParameters) *parametersView {
	if p == nil {
		return nil
	}
	return &parametersView{
		Mint:               p.Mint,
		CreatorFeeBps:      p.CreatorFeeBps,
		Distribution:       p.Distribution,
		InitialBuyLamports: p.InitialBuyLamports,
		SlippageBps:        p.SlippageBps,
		UpdatedAt:          p.UpdatedAt,
	}
}

type creatorFeesView struct {
	Window        string          `json:"window"`
	TotalLamports uint64          `json:"total_lamports"`
	TotalSOL      string          `json:"total_sol"`
	Split         fees.Allocation `json:"split_lamports"`
}

func newCreatorFeesView(c *token.CreatorFees) creatorFeesView {
	return creatorFeesView{
		Window:        c.Window.String(),
		TotalLamports: c.Total,
		TotalSOL:      fees.LamportsToSOL(c.Total).String(),
		Split:         c.Split,
	}
}

type tradeView struct {
	ID          string  `json:"id"`
	Wallet      string  `json:"wallet"`
	Mint        string  `json:"mint"`
	Side        string  `json:"side"`
	SOLLamports uint64  `json:"sol_lamports"`
	SOL         string  `json:"sol"`
	TokenAmount uint64  `json:"token_amount"`
	PriceSOL    float64 `json:"price_sol"`
	FeeLamports uint64  `json:"fee_lamports"`
	Signature   string  `json:"signature"`
	CreatedAt   int64   `json:"created_at"`
}

func newTradeView(t *domain.Trade) *tradeView {
	if t == nil {
		return nil
	}
	return &tradeView{
		ID:          t.ID,
		Wallet:      t.Wallet,
		Mint:        t.Mint,
		Side:        string(t.Side),
		SOLLamports: t.SOLAmount,
		SOL:         fees.LamportsToSOL(t.SOLAmount).String(),
		TokenAmount: t.TokenAmount,
		PriceSOL:    t.PriceSOL,
		FeeLamports: t.FeeLamports,
		Signature:   t.Signature,
		CreatedAt:   t.CreatedAt,
	}
}

func newTradeViews(ts []*domain.Trade) []*tradeView {
	out := make([]*tradeView, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTradeView(t))
	}
	return out
}

type claimView struct {
	ID          string  `json:"id"`
	Amount      uint64  `json:"amount_lamports"`
	AmountSOL   string  `json:"amount_sol"`
	Destination string  `json:"destination"`
	Status      string  `json:"status"`
	Signature   *string `json:"signature,omitempty"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

func newClaimView(c *domain.ReferralClaim) *claimView {
	if c == nil {
		return nil
	}
	return &claimView{
		ID:          c.ID,
		Amount:      c.Amount,
		AmountSOL:   fees.LamportsToSOL(c.Amount).String(),
		Destination: c.Destination,
		Status:      string(c.Status),
		Signature:   c.Signature,
		Error:       c.Error,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type quoteView struct {
	Mint      string   `json:"mint"`
	PriceUSD  float64  `json:"price_usd"`
	PriceSOL  *float64 `json:"price_sol,omitempty"`
	Source    string   `json:"source"`
	FetchedAt int64    `json:"fetched_at"`
}

func newQuoteView(q *domain.PriceQuote) quoteView {
	return quoteView{Mint: q.Mint, PriceUSD: q.PriceUSD, PriceSOL: q.PriceSOL, Source: q.Source, FetchedAt: q.FetchedAt}
}

type historyView struct {
	Signature string     `json:"signature"`
	Time      *int64     `json:"time,omitempty"`
	Slot      int64      `json:"slot,omitempty"`
	Success   bool       `json:"success"`
	Memo      *string    `json:"memo,omitempty"`
	Trade     *tradeView `json:"trade,omitempty"`
}

func newHistoryViews(es []*wallet.HistoryEntry) []historyView {
	out := make([]historyView, 0, len(es))
	for _, e := range es {
		out = append(out, historyView{
			Signature: e.Signature,
			Time:      e.Time,
			Slot:      e.Slot,
			Success:   e.Success,
			Memo:      e.Memo,
			Trade:     newTradeView(e.Trade),
		})
	}
	return out
}
