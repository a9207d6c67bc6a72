package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aqua-launchpad/internal/api"
	"aqua-launchpad/internal/config"
	"aqua-launchpad/internal/jobs"
	"aqua-launchpad/internal/lock"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/price"
	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/token"
	"aqua-launchpad/internal/trade"
	"aqua-launchpad/internal/vault"
	"aqua-launchpad/internal/wallet"
)

// limiterIdle is how long an unused per-key rate limiter is kept.
const limiterIdle = 10 * time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, metrics endpoint and scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.logger)
		},
	}
}

// services is the wired application.
type services struct {
	resolver  *price.Resolver
	wallets   *wallet.Service
	referrals *referral.Service
	tokens    *token.Service
	trades    *trade.Service
	sweepers  []jobs.Sweeper
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, closeStores, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	svc, closeSvc, err := buildServices(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer closeSvc()

	server := api.NewServer(api.Deps{
		Prices:    svc.resolver,
		Tokens:    svc.tokens,
		Trades:    svc.trades,
		Wallets:   svc.wallets,
		Referrals: svc.referrals,
		Logger:    logger,
	}, api.Options{
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		JWTIssuer:         cfg.Auth.Issuer,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
	})

	sched := jobs.New(logger)
	sweepers := append(svc.sweepers,
		jobs.CountSweeper("api_limiter", func() int { return server.CleanupLimiter(limiterIdle) }),
	)
	err = jobs.Register(sched, jobs.Schedules{
		PriceRefresh:   cfg.Jobs.PriceRefresh,
		ClaimReconcile: cfg.Jobs.ClaimReconcile,
		Cleanup:        cfg.Jobs.Cleanup,
	}, jobs.Deps{
		Prices:   svc.tokens,
		Claims:   svc.referrals,
		Sweepers: sweepers,
		Timeout:  5 * time.Minute,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		metricsServer = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := apiServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			err = errors.Join(err, metricsServer.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildServices wires the chain clients, the lock backend and every service.
func buildServices(ctx context.Context, cfg *config.Config, st *allStores, logger *zap.Logger) (*services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*services, func(), error) {
		cleanup()
		return nil, func() {}, err
	}
	svc := &services{}

	commitment := solana.Commitment(cfg.Solana.Commitment)
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithCommitment(commitment),
		solana.WithTimeout(30*time.Second),
	)

	var ws solana.WSClient
	if cfg.Solana.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		client, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
		if err != nil {
			logger.Warn("websocket unavailable, confirming by polling", zap.Error(err))
		} else {
			ws = client
			closers = append(closers, func() { _ = client.Close() })
		}
	}
	confirmer := solana.NewConfirmer(rpc, ws, commitment, cfg.Solana.PollInterval, logger)

	locker, err := newLocker(ctx, cfg.Lock, st, svc, logger)
	if err != nil {
		return fail(err)
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	v, err := vault.NewFromBase64(cfg.Vault.MasterKey)
	if err != nil {
		return fail(err)
	}

	var payout *solana.Keypair
	if cfg.Referral.ClaimsEnabled {
		payout, err = solana.ParseKeypair(cfg.Referral.PayoutSecret)
		if err != nil {
			return fail(fmt.Errorf("referral payout key: %w", err))
		}
		logger.Info("referral payouts enabled", zap.String("payout_wallet", payout.Address()))
	}

	svc.wallets = wallet.NewService(wallet.Deps{
		Wallets:        st.wallets,
		Users:          st.users,
		Trades:         st.trades,
		Vault:          v,
		RPC:            rpc,
		Confirmer:      confirmer,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		Logger:         logger,
	})

	refCfg := referral.Config{
		ShareBps:         cfg.Fees.ReferralShareBps,
		MinClaimLamports: cfg.Referral.MinClaimLamports,
		Cooldown:         cfg.Referral.Cooldown,
		ClaimsPerMinute:  float64(cfg.Referral.RatePerMinute),
		ClaimBurst:       cfg.Referral.RatePerMinute,
		LockTTL:          cfg.Lock.TTL,
		ConfirmTimeout:   cfg.Solana.ConfirmTimeout,
		DropAfter:        cfg.Referral.DropAfter,
	}
	if err := refCfg.Validate(); err != nil {
		return fail(fmt.Errorf("referral config: %w", err))
	}
	svc.referrals = referral.NewService(referral.Deps{
		Users:     st.users,
		Referrals: st.referrals,
		Claims:    st.claims,
		RPC:       rpc,
		Confirmer: confirmer,
		Locker:    locker,
		Payout:    payout,
		Logger:    logger,
	}, refCfg)
	svc.sweepers = append(svc.sweepers,
		jobs.CountSweeper("claim_limiter", func() int { return svc.referrals.CleanupLimiter(limiterIdle) }),
	)

	svc.resolver = price.NewResolver(
		price.DefaultSources(price.Endpoints{
			JupiterQuote: cfg.Price.JupiterQuoteURL,
			JupiterPrice: cfg.Price.JupiterPriceURL,
			LegacyPrice:  cfg.Price.LegacyPriceURL,
			DexScreener:  cfg.Price.DexScreenerURL,
			Timeout:      cfg.Price.Timeout,
		}, nil),
		price.WithCacheTTL(cfg.Price.CacheTTL),
		price.WithHistory(st.history),
		price.WithLogger(logger),
	)
	svc.sweepers = append(svc.sweepers, jobs.CountSweeper("price_cache", svc.resolver.PurgeExpired))

	svc.tokens = token.NewService(token.Deps{
		Tokens:         st.tokens,
		Params:         st.params,
		Wallets:        svc.wallets,
		Launcher:       token.NewPumpPortal(cfg.Launch.PumpPortalURL, cfg.Launch.IPFSURL, cfg.Launch.Timeout),
		RPC:            rpc,
		Confirmer:      confirmer,
		Pricer:         svc.resolver,
		Analytics:      st.analytics,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		PriorityFeeSOL: cfg.Launch.PriorityFeeSOL,
		Logger:         logger,
	})

	svc.trades, err = trade.NewService(trade.Deps{
		Trades:         st.trades,
		Analytics:      st.analytics,
		Wallets:        svc.wallets,
		Swapper:        trade.NewJupiter(cfg.Trade.JupiterQuoteURL, cfg.Trade.JupiterSwapURL, cfg.Trade.Timeout),
		RPC:            rpc,
		Confirmer:      confirmer,
		Referrals:      svc.referrals,
		Treasury:       cfg.Fees.Treasury,
		FeeBps:         cfg.Fees.PlatformFeeBps,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fail(err)
	}

	return svc, cleanup, nil
}

// newLocker builds the claim lock backend and registers its sweeper.
func newLocker(ctx context.Context, cfg config.LockConfig, st *allStores, svc *services, logger *zap.Logger) (lock.Locker, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("claim locks in redis", zap.String("addr", cfg.RedisAddr))
		return redisLocker{Redis: lock.NewRedis(client, "aqua:lock:", logger.Named("lock")), client: client}, nil
	case "postgres":
		if st.pool == nil {
			return nil, errors.New("postgres lock requires postgres storage")
		}
		l := lock.NewPostgres(st.pool, logger.Named("lock"))
		svc.sweepers = append(svc.sweepers, jobs.Sweeper{Name: "claim_locks", Sweep: l.PurgeExpired})
		return l, nil
	default:
		l := lock.NewMemory()
		svc.sweepers = append(svc.sweepers, jobs.CountSweeper("claim_locks", l.Purge))
		return l, nil
	}
}

// redisLocker owns the client behind a Redis lock.
type redisLocker struct {
	*lock.Redis
	client *redis.Client
}

func (r redisLocker) Close() error { return r.client.Close() }
