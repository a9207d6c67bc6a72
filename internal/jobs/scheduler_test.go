package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"aqua-launchpad/internal/referral"
	"aqua-launchpad/internal/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_Add(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Add("a", "@every 1m", 0, noop))
	require.NoError(t, s.Add("b", "", 0, noop))
	assert.Error(t, s.Add("a", "@every 1m", 0, noop), "duplicate name")
	assert.Error(t, s.Add("c", "not a spec", 0, noop))
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	boom := errors.New("boom")
	var calls atomic.Int32
	require.NoError(t, s.Add("ok", "", 0, func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("bad", "", 0, func(context.Context) error { return boom }))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, s.RunNow(context.Background(), "bad"), boom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)
}

func TestScheduler_RunNowTimeout(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	require.NoError(t, s.Add("slow", "", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), context.DeadlineExceeded)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add("long", "", 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "long") }()
	<-started
	assert.ErrorIs(t, s.RunNow(context.Background(), "long"), ErrAlreadyRunning)
	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", 0, func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, s.Add("blocking", "@every 1s", 0, func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	require.NoError(t, s.Add("panics", "@every 1s", 0, func(context.Context) error {
		calls.Add(1)
		panic("job bug")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	<-done
}

type fakePrices struct {
	res token.RefreshResult
	err error
	n   atomic.Int32
}

func (f *fakePrices) RefreshPrices(context.Context) (token.RefreshResult, error) {
	f.n.Add(1)
	return f.res, f.err
}

type fakeClaims struct {
	res referral.ReconcileResult
	n   atomic.Int32
}

func (f *fakeClaims) Reconcile(context.Context) (referral.ReconcileResult, error) {
	f.n.Add(1)
	return f.res, nil
}

func TestRegister(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	prices := &fakePrices{res: token.RefreshResult{Tokens: 3, Priced: 2, Failed: 1}}
	claims := &fakeClaims{res: referral.ReconcileResult{Checked: 1, Completed: 1}}
	var swept []string
	broken := errors.New("db down")

	err := Register(s, Schedules{PriceRefresh: "@every 1m", ClaimReconcile: "@every 30s"}, Deps{
		Prices: prices,
		Claims: claims,
		Sweepers: []Sweeper{
			{Name: "locks", Sweep: func(context.Context) (int64, error) { return 0, broken }},
			CountSweeper("cache", func() int { swept = append(swept, "cache"); return 4 }),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ClaimReconcile, Cleanup, PriceRefresh}, s.Names())

	ctx := context.Background()
	require.NoError(t, s.RunNow(ctx, PriceRefresh))
	require.NoError(t, s.RunNow(ctx, ClaimReconcile))
	assert.Equal(t, int32(1), prices.n.Load())
	assert.Equal(t, int32(1), claims.n.Load())

	err = s.RunNow(ctx, Cleanup)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, []string{"cache"}, swept, "later sweepers still run")
}

func TestRegister_SkipsMissingDeps(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	require.NoError(t, Register(s, Schedules{}, Deps{Claims: &fakeClaims{}}))
	assert.Equal(t, []string{ClaimReconcile}, s.Names())
}
