package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aqua-launchpad/internal/config"
	"aqua-launchpad/internal/storage"
	chstore "aqua-launchpad/internal/storage/clickhouse"
	"aqua-launchpad/internal/storage/memory"
	"aqua-launchpad/internal/storage/migrations"
	pgstore "aqua-launchpad/internal/storage/postgres"
)

// allStores holds every store the services use.
type allStores struct {
	users     storage.UserStore
	referrals storage.ReferralStore
	claims    storage.ClaimStore
	wallets   storage.WalletStore
	tokens    storage.TokenStore
	params    storage.TokenParametersStore
	trades    storage.TradeStore
	analytics storage.TradeAnalyticsStore
	history   storage.PriceHistoryStore

	pool *pgstore.Pool // nil on the memory driver
}

// createStores opens the configured backends and applies pending migrations.
func createStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*allStores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	s := &allStores{}
	switch cfg.Driver {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		applied, err := migrations.RunPostgresMigrations(ctx, pool, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("postgres migrations applied", zap.Strings("files", applied))
		}

		s.pool = pool
		s.users = pgstore.NewUserStore(pool)
		s.referrals = pgstore.NewReferralStore(pool)
		s.claims = pgstore.NewClaimStore(pool)
		s.wallets = pgstore.NewWalletStore(pool)
		s.tokens = pgstore.NewTokenStore(pool)
		s.params = pgstore.NewTokenParametersStore(pool)
		s.trades = pgstore.NewTradeStore(pool)
	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		s.users = memory.NewUserStore()
		s.referrals = memory.NewReferralStore()
		s.claims = memory.NewClaimStore()
		s.wallets = memory.NewWalletStore()
		s.tokens = memory.NewTokenStore()
		s.params = memory.NewTokenParametersStore()
		s.trades = memory.NewTradeStore()
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		s.analytics = chstore.NewTradeAnalyticsStore(conn)
		s.history = chstore.NewPriceHistoryStore(conn)
	} else {
		s.analytics = memory.NewTradeAnalyticsStore()
		s.history = memory.NewPriceHistoryStore()
	}

	return s, cleanup, nil
}
