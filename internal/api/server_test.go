package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/price"
	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/storage"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/trade"
)

var testSecret = []byte("test-secret-0123456789")

const testIssuer = "aqua-test"

type env struct {
	srv       *Server
	prices    *fakePrices
	tokens    *fakeTokens
	trades    *fakeTrades
	wallets   *fakeWallets
	referrals *fakeReferrals
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	e := &env{
		prices:    &fakePrices{quotes: map[string]*domain.PriceQuote{}},
		tokens:    &fakeTokens{tokens: map[string]*domain.Token{}},
		trades:    &fakeTrades{},
		wallets:   newFakeWallets(),
		referrals: newFakeReferrals(),
	}
	if opts.JWTSecret == nil {
		opts.JWTSecret = testSecret
	}
	if opts.JWTIssuer == "" {
		opts.JWTIssuer = testIssuer
	}
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"*"}
	}
	e.srv = NewServer(Deps{
		Prices:    e.prices,
		Tokens:    e.tokens,
		Trades:    e.trades,
		Wallets:   e.wallets,
		Referrals: e.referrals,
	}, opts)
	return e
}

func signToken(t *testing.T, sub string, exp time.Time, secret []byte) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    apierr.Code     `json:"code"`
}

func (e *env) do(t *testing.T, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, user, time.Now().Add(time.Hour), testSecret))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestHealth(t *testing.T) {
	e := newEnv(t, Options{})
	status, body := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
}

func TestNotFoundRoute(t *testing.T) {
	e := newEnv(t, Options{})
	status, body := e.do(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)
	assert.Equal(t, apierr.CodeNotFound, body.Code)
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t, Options{})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "missing bearer token"},
		{"not bearer", "Basic abc", "missing bearer token"},
		{"garbage", "Bearer not-a-jwt", "invalid token"},
		{"wrong secret", "Bearer " + signToken(t, "u1", time.Now().Add(time.Hour), []byte("another-secret-value")), "invalid token"},
		{"expired", "Bearer " + signToken(t, "u1", time.Now().Add(-time.Minute), testSecret), "token expired"},
		{"no subject", "Bearer " + signToken(t, "", time.Now().Add(time.Hour), testSecret), "token has no subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.srv.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apierr.CodeUnauthorized, body.Code)
			assert.Equal(t, tt.want, body.Error)
		})
	}
	assert.Empty(t, e.referrals.users, "rejected requests must not create users")
}

func TestAuthentication_WrongIssuer(t *testing.T) {
	e := newEnv(t, Options{JWTIssuer: "someone-else"})
	status, body := e.do(t, http.MethodGet, "/api/wallets", "u1", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid token", body.Error)
}

func TestAuthentication_RejectsNoneAlgorithm(t *testing.T) {
	e := newEnv(t, Options{})
	claims := jwt.RegisteredClaims{Subject: "u1", Issuer: testIssuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPrivateRouteCreatesUser(t *testing.T) {
	e := newEnv(t, Options{})
	status, _ := e.do(t, http.MethodGet, "/api/wallets", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, e.referrals.users, "u1")
}

func TestCORS(t *testing.T) {
	e := newEnv(t, Options{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/tokens", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// No Origin header: same-origin or server-to-server.
	req = httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, Options{RequestsPerMinute: 2})

	call := func(path, addr string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("/api/tokens", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("/api/tokens", "10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("/api/tokens", "10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, call("/health", "10.0.0.1:1003"))
	assert.Equal(t, http.StatusOK, call("/api/tokens", "10.0.0.2:1000"))

	assert.Equal(t, 0, e.srv.CleanupLimiter(time.Hour))
	assert.Equal(t, 2, e.srv.CleanupLimiter(-time.Second))
}

func TestPrice(t *testing.T) {
	e := newEnv(t, Options{})
	sol := 0.00001
	e.prices.quotes["MintA"] = &domain.PriceQuote{Mint: "MintA", PriceUSD: 0.0015, PriceSOL: &sol, Source: "jupiter", FetchedAt: time.Now().UnixMilli()}

	status, body := e.do(t, http.MethodGet, "/api/price/MintA", "", nil)
	require.Equal(t, http.StatusOK, status)
	var q quoteView
	decodeData(t, body, &q)
	assert.Equal(t, "jupiter", q.Source)
	assert.InDelta(t, 0.0015, q.PriceUSD, 1e-12)

	e.prices.err = price.ErrPriceUnavailable
	status, body = e.do(t, http.MethodGet, "/api/price/MintA", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, apierr.CodePriceUnavailable, body.Code)
}

func TestPriceHistory(t *testing.T) {
	e := newEnv(t, Options{})
	e.prices.quotes["MintA"] = &domain.PriceQuote{Mint: "MintA", PriceUSD: 1, Source: "dexscreener", FetchedAt: time.Now().UnixMilli()}

	status, body := e.do(t, http.MethodGet, "/api/price/MintA/history", "", nil)
	require.Equal(t, http.StatusOK, status)
	var list []quoteView
	decodeData(t, body, &list)
	assert.Len(t, list, 1)

	status, body = e.do(t, http.MethodGet, "/api/price/MintA/history?from=10&to=5", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apierr.CodeInvalidRequest, body.Code)

	status, _ = e.do(t, http.MethodGet, "/api/price/MintA/history?from=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateToken(t *testing.T) {
	e := newEnv(t, Options{})
	image := []byte{0x89, 'P', 'N', 'G'}

	status, body := e.do(t, http.MethodPost, "/api/tokens", "u1", map[string]interface{}{
		"name":            "Aqua",
		"symbol":          "AQUA",
		"image":           "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
		"image_name":      "aqua.png",
		"platform":        "Bonk",
		"initial_buy_sol": "0.5",
		"parameters":      map[string]interface{}{"creator_fee_bps": 250},
	})
	require.Equal(t, http.StatusCreated, status, body.Error)

	require.Len(t, e.tokens.created, 1)
	in := e.tokens.created[0]
	assert.Equal(t, "u1", e.tokens.creators[0])
	assert.Equal(t, image, in.Image)
	assert.Equal(t, domain.PlatformBonk, in.Platform)
	assert.Equal(t, uint64(500_000_000), in.InitialBuyLamports)
	require.NotNil(t, in.Parameters.CreatorFeeBps)
	assert.Equal(t, 250, *in.Parameters.CreatorFeeBps)

	var out struct {
		Token     tokenView `json:"token"`
		Signature string    `json:"signature"`
		Confirmed bool      `json:"confirmed"`
	}
	decodeData(t, body, &out)
	assert.Equal(t, "MintCreated", out.Token.Mint)
	assert.Equal(t, "sigCreate", out.Signature)
	assert.True(t, out.Confirmed)
}

func TestCreateToken_BadInput(t *testing.T) {
	e := newEnv(t, Options{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"not json", "{"},
		{"bad image", map[string]string{"name": "A", "image": "%%%"}},
		{"bad amount", map[string]string{"name": "A", "initial_buy_sol": "0.0000000001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/api/tokens", "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, apierr.CodeInvalidRequest, body.Code)
		})
	}
	assert.Empty(t, e.tokens.created)
}

func TestCreateToken_BodyTooLarge(t *testing.T) {
	e := newEnv(t, Options{})
	big := `{"name":"A","image":"` + strings.Repeat("A", maxBodyBytes) + `"}`
	status, _ := e.do(t, http.MethodPost, "/api/tokens", "u1", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestTokens_ListGetUpdate(t *testing.T) {
	e := newEnv(t, Options{})
	e.tokens.tokens["MintA"] = &domain.Token{Mint: "MintA", Creator: "u1", Name: "A", Stage: domain.StageBonding}
	e.tokens.tokens["MintB"] = &domain.Token{Mint: "MintB", Creator: "u2", Name: "B", Stage: domain.StageMigrated}

	status, body := e.do(t, http.MethodGet, "/api/tokens?limit=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	var list []tokenView
	decodeData(t, body, &list)
	assert.Len(t, list, 2)

	status, body = e.do(t, http.MethodGet, "/api/tokens?creator=u2", "", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "MintB", list[0].Mint)

	status, _ = e.do(t, http.MethodGet, "/api/tokens?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = e.do(t, http.MethodGet, "/api/tokens/MintA", "", nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		Token       tokenView        `json:"token"`
		CreatorFees *creatorFeesView `json:"creator_fees"`
	}
	decodeData(t, body, &detail)
	assert.Equal(t, "bonding", detail.Token.Stage)
	assert.Nil(t, detail.CreatorFees)

	e.tokens.fees = map[string]*token.CreatorFees{"MintA": {
		Window: 24 * time.Hour,
		Total:  100_000_000,
		Split:  fees.Allocation{Holders: 40_000_000, Liquidity: 30_000_000, Buyback: 20_000_000, Creator: 10_000_000},
	}}
	status, body = e.do(t, http.MethodGet, "/api/tokens/MintA", "", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body, &detail)
	require.NotNil(t, detail.CreatorFees)
	assert.Equal(t, "24h0m0s", detail.CreatorFees.Window)
	assert.Equal(t, "0.1", detail.CreatorFees.TotalSOL)
	assert.Equal(t, uint64(10_000_000), detail.CreatorFees.Split.Creator)

	status, body = e.do(t, http.MethodGet, "/api/tokens/Missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apierr.CodeNotFound, body.Code)

	status, _ = e.do(t, http.MethodPut, "/api/tokens/MintA/parameters", "u1", map[string]int{"creator_fee_bps": 300})
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, e.tokens.updated["MintA"].CreatorFeeBps)
	assert.Equal(t, 300, *e.tokens.updated["MintA"].CreatorFeeBps)

	status, body = e.do(t, http.MethodPut, "/api/tokens/MintA/parameters", "u2", map[string]int{"creator_fee_bps": 1})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apierr.CodeForbidden, body.Code)

	status, _ = e.do(t, http.MethodPut, "/api/tokens/MintA/parameters", "", map[string]int{"creator_fee_bps": 1})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTokenTradesAndVolume(t *testing.T) {
	e := newEnv(t, Options{})
	e.trades.list = []*domain.Trade{
		{ID: "t1", UserID: "u1", Mint: "MintA", Side: domain.SideBuy, SOLAmount: 250_000_000},
		{ID: "t2", UserID: "u2", Mint: "MintB", Side: domain.SideSell},
	}
	e.trades.volume = &storage.VolumeStats{Trades: 3, Buys: 2, Sells: 1, VolumeSOL: 1_250_000_000, FeesSOL: 12_500_000, UniqueUsers: 2}

	status, body := e.do(t, http.MethodGet, "/api/tokens/MintA/trades", "", nil)
	require.Equal(t, http.StatusOK, status)
	var trades []tradeView
	decodeData(t, body, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, "0.25", trades[0].SOL)

	status, body = e.do(t, http.MethodGet, "/api/tokens/MintA/volume?window=1h", "", nil)
	require.Equal(t, http.StatusOK, status)
	var vol map[string]interface{}
	decodeData(t, body, &vol)
	assert.Equal(t, "1.25", vol["volume_sol"])
	assert.Equal(t, "1h0m0s", vol["window"])

	for _, w := range []string{"abc", "-1h", "1000h"} {
		status, _ = e.do(t, http.MethodGet, "/api/tokens/MintA/volume?window="+w, "", nil)
		assert.Equal(t, http.StatusBadRequest, status, w)
	}
}

func TestTrades(t *testing.T) {
	e := newEnv(t, Options{})
	e.trades.result = &trade.Result{
		Trade:     &domain.Trade{ID: "t1", UserID: "u1", Mint: "MintA", Side: domain.SideBuy, SOLAmount: 99_000_000},
		Signature: "sigT",
		Confirmed: true,
	}

	status, body := e.do(t, http.MethodPost, "/api/trades/buy", "u1", map[string]interface{}{
		"mint": "MintA", "sol_amount": "0.1", "slippage_bps": 300,
	})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, trade.Request{Mint: "MintA", Amount: 100_000_000, SlippageBps: 300}, e.trades.requests[0])
	assert.Equal(t, domain.SideBuy, e.trades.sides[0])

	status, _ = e.do(t, http.MethodPost, "/api/trades/sell", "u1", map[string]interface{}{
		"mint": "MintA", "wallet_id": "w1", "token_amount": 123456789,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, trade.Request{WalletID: "w1", Mint: "MintA", Amount: 123456789}, e.trades.requests[1])
	assert.Equal(t, domain.SideSell, e.trades.sides[1])

	e.trades.result = &trade.Result{Signature: "sigU"}
	status, body = e.do(t, http.MethodPost, "/api/trades/buy", "u1", map[string]interface{}{"mint": "MintA", "sol_amount": "1"})
	assert.Equal(t, http.StatusAccepted, status)
	var pending map[string]interface{}
	decodeData(t, body, &pending)
	assert.Equal(t, false, pending["confirmed"])
	assert.Nil(t, pending["trade"])

	e.trades.err = trade.ErrLowBalance
	status, body = e.do(t, http.MethodPost, "/api/trades/buy", "u1", map[string]interface{}{"mint": "MintA", "sol_amount": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apierr.CodeInsufficientFunds, body.Code)

	status, _ = e.do(t, http.MethodPost, "/api/trades/buy", "u1", map[string]interface{}{"mint": "MintA", "sol_amount": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	e.trades.list = []*domain.Trade{{ID: "t1", UserID: "u1"}, {ID: "t2", UserID: "u2"}}
	status, body = e.do(t, http.MethodGet, "/api/trades", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var list []tradeView
	decodeData(t, body, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].ID)
}

func TestWallets(t *testing.T) {
	e := newEnv(t, Options{})

	status, body := e.do(t, http.MethodPost, "/api/wallets/generate", "u1", nil)
	require.Equal(t, http.StatusCreated, status, body.Error)
	assert.NotContains(t, string(body.Data), "secret")

	status, body = e.do(t, http.MethodPost, "/api/wallets/import", "u1", map[string]string{"secret": "abc", "label": "cold"})
	require.Equal(t, http.StatusCreated, status)
	var imported walletView
	decodeData(t, body, &imported)
	assert.True(t, imported.Imported)
	assert.Equal(t, "cold", imported.Label)

	status, body = e.do(t, http.MethodPost, "/api/wallets/import", "u1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid secret key", body.Error)

	status, body = e.do(t, http.MethodGet, "/api/wallets", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var list []walletView
	decodeData(t, body, &list)
	assert.Len(t, list, 2)

	status, body = e.do(t, http.MethodGet, "/api/wallets/w-gen/balance", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), `"sol":"1.5"`)

	status, _ = e.do(t, http.MethodGet, "/api/wallets/w-gen/balance", "u2", nil)
	assert.Equal(t, http.StatusNotFound, status, "wallets of other users are invisible")

	status, _ = e.do(t, http.MethodPost, "/api/wallets/w-gen/withdraw", "u1", map[string]string{"destination": "Dest", "sol_amount": "0.2"})
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodPost, "/api/wallets/w-gen/withdraw", "u1", map[string]string{"destination": "Dest"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []uint64{200_000_000, 0}, e.wallets.withdrawn)

	status, _ = e.do(t, http.MethodGet, "/api/wallets/w-gen/transactions?limit=5", "u1", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodPut, "/api/wallets/w-imp/primary", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var primary walletView
	decodeData(t, body, &primary)
	assert.True(t, primary.IsPrimary)

	status, _ = e.do(t, http.MethodDelete, "/api/wallets/w-gen", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"w-gen"}, e.wallets.deleted)

	status, _ = e.do(t, http.MethodPatch, "/api/wallets/w-imp", "u1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestReferral(t *testing.T) {
	e := newEnv(t, Options{})

	status, body := e.do(t, http.MethodPost, "/api/referral/attach", "u1", map[string]string{"code": "CODE-u2"})
	require.Equal(t, http.StatusOK, status)
	var u userView
	decodeData(t, body, &u)
	require.NotNil(t, u.ReferredBy)

	status, body = e.do(t, http.MethodPost, "/api/referral/attach", "u1", map[string]string{"code": "CODE-u1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, referral.ErrSelfReferral.Message, body.Error)

	status, body = e.do(t, http.MethodGet, "/api/referral/stats", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		Code         string      `json:"code"`
		PendingSOL   string      `json:"pending_sol"`
		RecentClaims []claimView `json:"recent_claims"`
	}
	decodeData(t, body, &stats)
	assert.Equal(t, "CODE-u1", stats.Code)
	assert.Equal(t, "0.02", stats.PendingSOL)
	require.Len(t, stats.RecentClaims, 1)
	assert.Equal(t, "0.05", stats.RecentClaims[0].AmountSOL)
	assert.Equal(t, "completed", stats.RecentClaims[0].Status)
}

func TestClaim(t *testing.T) {
	e := newEnv(t, Options{})

	status, body := e.do(t, http.MethodPost, "/api/referral/claim", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, status, "no destination and no wallet")
	assert.Empty(t, e.referrals.claims)

	e.wallets.add(&domain.Wallet{ID: "w1", UserID: "u1", PublicKey: "PrimaryPub", IsPrimary: true})
	status, body = e.do(t, http.MethodPost, "/api/referral/claim", "u1", nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	var c claimView
	decodeData(t, body, &c)
	assert.Equal(t, "PrimaryPub", c.Destination)
	assert.Equal(t, "0.02", c.AmountSOL)

	status, _ = e.do(t, http.MethodPost, "/api/referral/claim", "u1", map[string]string{"destination": " OtherPub "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"PrimaryPub", "OtherPub"}, e.referrals.claims)

	e.referrals.claimStatus = domain.ClaimSubmitted
	status, _ = e.do(t, http.MethodPost, "/api/referral/claim", "u1", nil)
	assert.Equal(t, http.StatusAccepted, status)

	tests := []struct {
		err    *apierr.Error
		status int
	}{
		{referral.ErrCooldownActive, http.StatusTooManyRequests},
		{referral.ErrBelowMinimum, http.StatusBadRequest},
		{referral.ErrClaimInProgress, http.StatusConflict},
		{referral.ErrPayoutFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		e.referrals.claimErr = tt.err
		status, body := e.do(t, http.MethodPost, "/api/referral/claim", "u1", nil)
		assert.Equal(t, tt.status, status, tt.err.Message)
		assert.Equal(t, tt.err.Code, body.Code)
	}
}

func TestMe(t *testing.T) {
	e := newEnv(t, Options{})
	e.wallets.add(&domain.Wallet{ID: "w1", UserID: "u1", PublicKey: "Pub", IsPrimary: true, EncryptedSecret: "enc"})

	status, body := e.do(t, http.MethodGet, "/api/users/me", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		User    userView     `json:"user"`
		Wallets []walletView `json:"wallets"`
	}
	decodeData(t, body, &me)
	assert.Equal(t, "u1", me.User.ID)
	assert.Equal(t, "CODE-u1", me.User.ReferralCode)
	require.Len(t, me.Wallets, 1)
	assert.NotContains(t, string(body.Data), "enc")
}

func TestPanicRecovery(t *testing.T) {
	e := newEnv(t, Options{})
	e.srv.prices = nil

	status, body := e.do(t, http.MethodGet, "/api/price/MintA", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, apierr.CodeInternal, body.Code)
}
