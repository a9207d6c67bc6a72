package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/trade"
)

// maxBodyBytes fits a 4 MiB image after base64 expansion.
const maxBodyBytes = 6 << 20

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.WriteError(w, err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.String("code", string(e.Code)), zap.Error(err))
		return
	}
	s.logger.Debug("request rejected",
		zap.String("path", r.URL.Path), zap.String("code", string(e.Code)), zap.Error(err))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierr.New(http.StatusRequestEntityTooLarge, apierr.CodeInvalidRequest, "request body too large")
		case errors.Is(err, io.EOF):
			return apierr.BadRequest("request body is empty")
		}
		return apierr.BadRequest("invalid JSON body").WithCause(err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apierr.BadRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func parseSOL(field, v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := fees.ParseSOL(v)
	if err != nil {
		return 0, apierr.BadRequest(field + " must be a SOL amount with at most 9 decimals").WithCause(err)
	}
	return n, nil
}

// --- price ---

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.prices.Resolve(r.Context(), mux.Vars(r)["mint"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newQuoteView(q))
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UnixMilli()
	from, err := queryInt(r, "from", int(now-24*time.Hour.Milliseconds()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := queryInt(r, "to", int(now))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if from > to {
		s.fail(w, r, apierr.BadRequest("from must not be after to"))
		return
	}
	quotes, err := s.prices.History(r.Context(), mux.Vars(r)["mint"], int64(from), int64(to))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]quoteView, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, newQuoteView(q))
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

// --- tokens ---

type createTokenRequest struct {
	WalletID      string                `json:"wallet_id"`
	Name          string                `json:"name"`
	Symbol        string                `json:"symbol"`
	Description   string                `json:"description"`
	Twitter       string                `json:"twitter"`
	Telegram      string                `json:"telegram"`
	Website       string                `json:"website"`
	Image         string                `json:"image"` // base64, data URL prefix allowed
	ImageName     string                `json:"image_name"`
	Platform      string                `json:"platform"`
	InitialBuySOL string                `json:"initial_buy_sol"`
	Parameters    token.ParametersInput `json:"parameters"`
}

func decodeImage(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apierr.BadRequest("image must be base64").WithCause(err)
	}
	return b, nil
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	initialBuy, err := parseSOL("initial_buy_sol", req.InitialBuySOL)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.tokens.Create(r.Context(), UserID(r.Context()), token.CreateInput{
		WalletID:           req.WalletID,
		Name:               req.Name,
		Symbol:             req.Symbol,
		Description:        req.Description,
		Twitter:            req.Twitter,
		Telegram:           req.Telegram,
		Website:            req.Website,
		Image:              image,
		ImageName:          req.ImageName,
		Platform:           domain.Platform(strings.ToLower(req.Platform)),
		InitialBuyLamports: initialBuy,
		Parameters:         req.Parameters,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      newTokenView(res.Token),
		"parameters": newParametersView(res.Parameters),
		"signature":  res.Signature,
		"confirmed":  res.Confirmed,
	})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	if creator := r.URL.Query().Get("creator"); creator != "" {
		list, err := s.tokens.ListByCreator(r.Context(), creator)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusOK, newTokenViews(list))
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.tokens.List(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newTokenViews(list))
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	d, err := s.tokens.Get(r.Context(), mux.Vars(r)["mint"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := map[string]interface{}{
		"token":      newTokenView(d.Token),
		"parameters": newParametersView(d.Parameters),
	}
	if d.CreatorFees != nil {
		body["creator_fees"] = newCreatorFeesView(d.CreatorFees)
	}
	apierr.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	var in token.ParametersInput
	if err := decode(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.tokens.UpdateParameters(r.Context(), UserID(r.Context()), mux.Vars(r)["mint"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newParametersView(p))
}

func (s *Server) handleTokenTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.trades.ListByMint(r.Context(), mux.Vars(r)["mint"], limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newTradeViews(list))
}

const maxVolumeWindow = 30 * 24 * time.Hour

func (s *Server) handleTokenVolume(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > maxVolumeWindow {
			s.fail(w, r, apierr.BadRequest("window must be a duration up to 720h"))
			return
		}
		window = d
	}
	stats, err := s.trades.Volume(r.Context(), mux.Vars(r)["mint"], window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mint":            stats.Mint,
		"window":          window.String(),
		"trades":          stats.Trades,
		"buys":            stats.Buys,
		"sells":           stats.Sells,
		"volume_sol":      fees.LamportsToSOL(stats.VolumeSOL).String(),
		"fees_sol":        fees.LamportsToSOL(stats.FeesSOL).String(),
		"unique_users":    stats.UniqueUsers,
		"volume_lamports": stats.VolumeSOL,
	})
}

// --- trades ---

type tradeRequest struct {
	WalletID    string `json:"wallet_id"`
	Mint        string `json:"mint"`
	SOLAmount   string `json:"sol_amount"`   // buys
	TokenAmount uint64 `json:"token_amount"` // sells, raw units
	SlippageBps int    `json:"slippage_bps"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	lamports, err := parseSOL("sol_amount", req.SOLAmount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.trades.Buy(r.Context(), UserID(r.Context()), trade.Request{
		WalletID: req.WalletID, Mint: req.Mint, Amount: lamports, SlippageBps: req.SlippageBps,
	})
	s.writeTrade(w, r, res, err)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.trades.Sell(r.Context(), UserID(r.Context()), trade.Request{
		WalletID: req.WalletID, Mint: req.Mint, Amount: req.TokenAmount, SlippageBps: req.SlippageBps,
	})
	s.writeTrade(w, r, res, err)
}

func (s *Server) writeTrade(w http.ResponseWriter, r *http.Request, res *trade.Result, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Confirmed {
		status = http.StatusAccepted
	}
	apierr.WriteJSON(w, status, map[string]interface{}{
		"trade":            newTradeView(res.Trade),
		"signature":        res.Signature,
		"confirmed":        res.Confirmed,
		"price_impact_pct": res.PriceImpactPct,
	})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.trades.ListByUser(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newTradeViews(list))
}

// --- wallets ---

type walletRequest struct {
	Label  string `json:"label"`
	Secret string `json:"secret"`
}

func (s *Server) handleGenerateWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	wl, err := s.wallets.Generate(r.Context(), UserID(r.Context()), req.Label)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, newWalletView(wl))
}

func (s *Server) handleImportWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	wl, err := s.wallets.Import(r.Context(), UserID(r.Context()), req.Secret, req.Label)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, newWalletView(wl))
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	list, err := s.wallets.List(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newWalletViews(list))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	b, err := s.wallets.Balance(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, b)
}

type withdrawRequest struct {
	Destination string `json:"destination"`
	SOLAmount   string `json:"sol_amount"` // empty withdraws everything above the fee reserve
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	lamports, err := parseSOL("sol_amount", req.SOLAmount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.wallets.Withdraw(r.Context(), UserID(r.Context()), mux.Vars(r)["id"], req.Destination, lamports)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Confirmed {
		status = http.StatusAccepted
	}
	apierr.WriteJSON(w, status, res)
}

func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.wallets.History(r.Context(), UserID(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newHistoryViews(list))
}

func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	wl, err := s.wallets.SetPrimary(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newWalletView(wl))
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.wallets.Delete(r.Context(), UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- referral ---

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.referrals.Attach(r.Context(), UserID(r.Context()), req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, newUserView(u))
}

type statsView struct {
	*referral.Stats
	RecentClaims []*claimView `json:"recent_claims"`
}

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.referrals.Stats(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := statsView{Stats: st, RecentClaims: make([]*claimView, 0, len(st.RecentClaims))}
	for _, c := range st.RecentClaims {
		v.RecentClaims = append(v.RecentClaims, newClaimView(c))
	}
	apierr.WriteJSON(w, http.StatusOK, v)
}

// handleClaim pays out the pending referral balance. Without a destination
// the payout goes to the user's primary wallet.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destination string `json:"destination"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	userID := UserID(r.Context())
	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		wl, err := s.wallets.Primary(r.Context(), userID)
		if err != nil {
			s.fail(w, r, apierr.BadRequest("destination is required when no wallet exists").WithCause(err))
			return
		}
		dest = wl.PublicKey
	}

	c, err := s.referrals.Claim(r.Context(), userID, dest)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if c.Status != domain.ClaimCompleted {
		status = http.StatusAccepted
	}
	apierr.WriteJSON(w, status, newClaimView(c))
}

// --- users ---

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	u, err := s.referrals.EnsureUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wallets, err := s.wallets.List(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":    newUserView(u),
		"wallets": newWalletViews(wallets),
	})
}
