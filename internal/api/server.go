// Package api exposes the launchpad over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/ratelimit"
	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/storage"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/trade"
	"aqua-launchpad/internal/wallet"
)

// Prices resolves token prices.
type Prices interface {
	Resolve(ctx context.Context, mint string) (*domain.PriceQuote, error)
	History(ctx context.Context, mint string, start, end int64) ([]*domain.PriceQuote, error)
}

// Tokens launches and queries tokens.
type Tokens interface {
	Create(ctx context.Context, userID string, in token.CreateInput) (*token.CreateResult, error)
	Get(ctx context.Context, mint string) (*token.Details, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Token, error)
	ListByCreator(ctx context.Context, userID string) ([]*domain.Token, error)
	UpdateParameters(ctx context.Context, userID, mint string, in token.ParametersInput) (*domain.TokenParameters, error)
}

// Trades executes and lists trades.
type Trades interface {
	Buy(ctx context.Context, userID string, r trade.Request) (*trade.Result, error)
	Sell(ctx context.Context, userID string, r trade.Request) (*trade.Result, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error)
	ListByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error)
	Volume(ctx context.Context, mint string, window time.Duration) (*storage.VolumeStats, error)
}

// Wallets manages custodial wallets.
type Wallets interface {
	Generate(ctx context.Context, userID, label string) (*domain.Wallet, error)
	Import(ctx context.Context, userID, secret, label string) (*domain.Wallet, error)
	List(ctx context.Context, userID string) ([]*domain.Wallet, error)
	Primary(ctx context.Context, userID string) (*domain.Wallet, error)
	SetPrimary(ctx context.Context, userID, walletID string) (*domain.Wallet, error)
	Delete(ctx context.Context, userID, walletID string) error
	Balance(ctx context.Context, userID, walletID string) (*wallet.Balance, error)
	Withdraw(ctx context.Context, userID, walletID, destination string, lamports uint64) (*wallet.Withdrawal, error)
	History(ctx context.Context, userID, walletID string, limit int) ([]*wallet.HistoryEntry, error)
}

// Referrals manages users, referral links and payouts.
type Referrals interface {
	EnsureUser(ctx context.Context, userID string) (*domain.User, error)
	Attach(ctx context.Context, userID, code string) (*domain.User, error)
	Stats(ctx context.Context, userID string) (*referral.Stats, error)
	Claim(ctx context.Context, userID, destination string) (*domain.ReferralClaim, error)
}

// Deps are the services behind the API.
type Deps struct {
	Prices    Prices
	Tokens    Tokens
	Trades    Trades
	Wallets   Wallets
	Referrals Referrals
	Logger    *zap.Logger
}

// Options configure the HTTP surface.
type Options struct {
	JWTSecret         []byte
	JWTIssuer         string
	CORSOrigins       []string // "*" allows any origin
	RequestsPerMinute int      // per client IP; 0 disables
}

// Server routes API requests.
type Server struct {
	prices    Prices
	tokens    Tokens
	trades    Trades
	wallets   Wallets
	referrals Referrals
	logger    *zap.Logger

	opts    Options
	limiter *ratelimit.Keyed
	started time.Time
	handler http.Handler
}

// NewServer builds the router and middleware chain.
func NewServer(d Deps, opts Options) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		prices:    d.Prices,
		tokens:    d.Tokens,
		trades:    d.Trades,
		wallets:   d.Wallets,
		referrals: d.Referrals,
		logger:    logger.Named("api"),
		opts:      opts,
		started:   time.Now(),
	}
	if opts.RequestsPerMinute > 0 {
		s.limiter = ratelimit.PerMinute(float64(opts.RequestsPerMinute), opts.RequestsPerMinute)
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.New(http.StatusMethodNotAllowed, apierr.CodeInvalidRequest, "method not allowed"))
	})
	r.Use(s.observe)
	s.routes(r)

	s.handler = s.recover(s.cors(s.rateLimit(r)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// CleanupLimiter drops idle per-IP limiters.
func (s *Server) CleanupLimiter(idle time.Duration) int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.Cleanup(idle)
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/price/{mint}", s.handlePrice).Methods(http.MethodGet)
	r.HandleFunc("/api/price/{mint}/history", s.handlePriceHistory).Methods(http.MethodGet)

	r.HandleFunc("/api/tokens", s.handleListTokens).Methods(http.MethodGet)
	r.Handle("/api/tokens", s.private(s.handleCreateToken)).Methods(http.MethodPost)
	r.HandleFunc("/api/tokens/{mint}", s.handleGetToken).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{mint}/trades", s.handleTokenTrades).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{mint}/volume", s.handleTokenVolume).Methods(http.MethodGet)
	r.Handle("/api/tokens/{mint}/parameters", s.private(s.handleUpdateParameters)).Methods(http.MethodPut)

	r.Handle("/api/trades/buy", s.private(s.handleBuy)).Methods(http.MethodPost)
	r.Handle("/api/trades/sell", s.private(s.handleSell)).Methods(http.MethodPost)
	r.Handle("/api/trades", s.private(s.handleListTrades)).Methods(http.MethodGet)

	r.Handle("/api/wallets/generate", s.private(s.handleGenerateWallet)).Methods(http.MethodPost)
	r.Handle("/api/wallets/import", s.private(s.handleImportWallet)).Methods(http.MethodPost)
	r.Handle("/api/wallets", s.private(s.handleListWallets)).Methods(http.MethodGet)
	r.Handle("/api/wallets/{id}/balance", s.private(s.handleBalance)).Methods(http.MethodGet)
	r.Handle("/api/wallets/{id}/withdraw", s.private(s.handleWithdraw)).Methods(http.MethodPost)
	r.Handle("/api/wallets/{id}/transactions", s.private(s.handleWalletHistory)).Methods(http.MethodGet)
	r.Handle("/api/wallets/{id}/primary", s.private(s.handleSetPrimary)).Methods(http.MethodPut)
	r.Handle("/api/wallets/{id}", s.private(s.handleDeleteWallet)).Methods(http.MethodDelete)

	r.Handle("/api/referral/attach", s.private(s.handleAttach)).Methods(http.MethodPost)
	r.Handle("/api/referral/stats", s.private(s.handleReferralStats)).Methods(http.MethodGet)
	r.Handle("/api/referral/claim", s.private(s.handleClaim)).Methods(http.MethodPost)

	r.Handle("/api/users/me", s.private(s.handleMe)).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}
