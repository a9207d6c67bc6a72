package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/token"
)

// Job names.
const (
	PriceRefresh   = "price_refresh"
	ClaimReconcile = "claim_reconcile"
	Cleanup        = "cleanup"
)

// PriceRefresher refreshes token price snapshots.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context) (token.RefreshResult, error)
}

// ClaimReconciler settles referral claims left in flight.
type ClaimReconciler interface {
	Reconcile(ctx context.Context) (referral.ReconcileResult, error)
}

// Sweeper drops stale in-memory or persisted state and reports how much.
type Sweeper struct {
	Name  string
	Sweep func(ctx context.Context) (int64, error)
}

// Schedules are the cron specs of the launchpad jobs; empty disables one.
type Schedules struct {
	PriceRefresh   string
	ClaimReconcile string
	Cleanup        string
}

// Deps are the services the launchpad jobs drive. Nil members skip their job.
type Deps struct {
	Prices   PriceRefresher
	Claims   ClaimReconciler
	Sweepers []Sweeper
	Timeout  time.Duration // per run; zero means none
	Logger   *zap.Logger
}

// Register adds the launchpad jobs to s.
func Register(s *Scheduler, sched Schedules, d Deps) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("jobs")

	if d.Prices != nil {
		err := s.Add(PriceRefresh, sched.PriceRefresh, d.Timeout, func(ctx context.Context) error {
			_, err := d.Prices.RefreshPrices(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if d.Claims != nil {
		err := s.Add(ClaimReconcile, sched.ClaimReconcile, d.Timeout, func(ctx context.Context) error {
			_, err := d.Claims.Reconcile(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if len(d.Sweepers) > 0 {
		return s.Add(Cleanup, sched.Cleanup, d.Timeout, sweep(logger, d.Sweepers))
	}
	return nil
}

// sweep runs every sweeper even when one fails.
func sweep(logger *zap.Logger, sweepers []Sweeper) Func {
	return func(ctx context.Context) error {
		var errs []error
		for _, sw := range sweepers {
			n, err := sw.Sweep(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sw.Name, err))
				continue
			}
			if n > 0 {
				logger.Debug("swept", zap.String("target", sw.Name), zap.Int64("removed", n))
			}
		}
		return errors.Join(errs...)
	}
}

// CountSweeper wraps a context-free cleanup that returns a count.
func CountSweeper(name string, fn func() int) Sweeper {
	return Sweeper{Name: name, Sweep: func(context.Context) (int64, error) {
		return int64(fn()), nil
	}}
}
