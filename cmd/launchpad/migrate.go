package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aqua-launchpad/internal/storage/migrations"
	pgstore "aqua-launchpad/internal/storage/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.Storage
			if cfg.PostgresDSN == "" && cfg.ClickHouseDSN == "" {
				return errors.New("nothing to migrate: set postgres_dsn and/or clickhouse_dsn")
			}

			if cfg.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer pool.Close()
				applied, err := migrations.RunPostgresMigrations(ctx, pool, a.logger)
				if err != nil {
					return err
				}
				a.logger.Info("postgres up to date", zap.Strings("applied", applied))
			}

			if cfg.ClickHouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, a.logger)
				if err != nil {
					return err
				}
				defer conn.Close()
				a.logger.Info("clickhouse up to date")
			}
			return nil
		},
	}
}
