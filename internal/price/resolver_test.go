package price

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage/memory"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type fakeSource struct {
	name  string
	price float64
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func newFakeSource(name string, price float64, err error) *fakeSource {
	return &fakeSource{name: name, price: price, err: err, calls: make(map[string]int)}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Price(ctx context.Context, mint string) (domain.PriceQuote, error) {
	f.mu.Lock()
	f.calls[mint]++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	sol := f.price / 100
	return domain.PriceQuote{Mint: mint, PriceUSD: f.price, PriceSOL: &sol}, nil
}

func (f *fakeSource) callsFor(mint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[mint]
}

func TestResolver_FirstSuccessWins(t *testing.T) {
	failing := newFakeSource(SourceJupiterQuote, 0, errors.New("boom"))
	ok := newFakeSource(SourceJupiterPrice, 2.5, nil)
	unused := newFakeSource(SourceLegacyPrice, 9, nil)

	r := NewResolver([]Source{failing, ok, unused})
	q, err := r.Resolve(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, SourceJupiterPrice, q.Source)
	assert.Equal(t, 2.5, q.PriceUSD)
	assert.Equal(t, testMint, q.Mint)
	assert.NotZero(t, q.FetchedAt)
	assert.Equal(t, 1, failing.callsFor(testMint))
	assert.Equal(t, 0, unused.callsFor(testMint))
}

func TestResolver_AllFail(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	r := NewResolver([]Source{
		newFakeSource("a", 0, errA),
		newFakeSource("b", 0, errB),
	})

	_, err := r.Resolve(context.Background(), testMint)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestResolver_InvalidMint(t *testing.T) {
	src := newFakeSource("a", 1, nil)
	r := NewResolver([]Source{src})

	_, err := r.Resolve(context.Background(), "not-a-mint")
	require.ErrorIs(t, err, ErrInvalidMint)
	assert.Equal(t, 0, src.callsFor("not-a-mint"))
}

func TestResolver_CacheTTL(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	src := newFakeSource("a", 1, nil)
	r := NewResolver([]Source{src}, WithCacheTTL(time.Minute), WithClock(clock))

	_, err := r.Resolve(context.Background(), testMint)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 1, src.callsFor(testMint))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.PurgeExpired())

	_, err = r.Resolve(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callsFor(testMint))
}

func TestResolver_Invalidate(t *testing.T) {
	src := newFakeSource("a", 1, nil)
	r := NewResolver([]Source{src})

	_, _ = r.Resolve(context.Background(), testMint)
	r.Invalidate(testMint)
	_, _ = r.Resolve(context.Background(), testMint)
	assert.Equal(t, 2, src.callsFor(testMint))
}

func TestResolver_CollapsesConcurrentMisses(t *testing.T) {
	src := newFakeSource("a", 1, nil)
	src.delay = 50 * time.Millisecond
	r := NewResolver([]Source{src})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), testMint); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, src.callsFor(testMint))
}

func TestResolver_CallerCancellation(t *testing.T) {
	src := newFakeSource("a", 1, nil)
	src.delay = 200 * time.Millisecond
	r := NewResolver([]Source{src})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, testMint)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolver_RecordsHistory(t *testing.T) {
	history := memory.NewPriceHistoryStore()
	r := NewResolver([]Source{newFakeSource("a", 3, nil)}, WithHistory(history))

	q, err := r.Resolve(context.Background(), testMint)
	require.NoError(t, err)

	got, err := r.History(context.Background(), testMint, 0, q.FetchedAt)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0].PriceUSD)
}

type countingHistory struct {
	*memory.PriceHistoryStore
	records atomic.Int32
	batches atomic.Int32
}

func (c *countingHistory) Record(ctx context.Context, q *domain.PriceQuote) error {
	c.records.Add(1)
	return c.PriceHistoryStore.Record(ctx, q)
}

func (c *countingHistory) RecordBatch(ctx context.Context, quotes []*domain.PriceQuote) error {
	c.batches.Add(1)
	return c.PriceHistoryStore.RecordBatch(ctx, quotes)
}

func TestResolver_ResolveManyRecordsFreshQuotesInOneBatch(t *testing.T) {
	history := &countingHistory{PriceHistoryStore: memory.NewPriceHistoryStore()}
	src := newFakeSource("a", 3, nil)
	r := NewResolver([]Source{src}, WithHistory(history))
	ctx := context.Background()

	_, err := r.Resolve(ctx, testMint)
	require.NoError(t, err)
	require.Equal(t, int32(1), history.records.Load())

	quotes, errs := r.ResolveMany(ctx, []string{testMint, domain.WrappedSOLMint, "bad"})
	require.Len(t, quotes, 3)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], ErrInvalidMint)
	assert.Equal(t, 3.0, quotes[0].PriceUSD)
	assert.Equal(t, domain.WrappedSOLMint, quotes[1].Mint)
	assert.Equal(t, 1, src.callsFor(testMint), "cached mint is not fetched again")

	assert.Equal(t, int32(1), history.records.Load(), "batch does not record one by one")
	assert.Equal(t, int32(1), history.batches.Load())

	got, err := r.History(ctx, testMint, 0, quotes[1].FetchedAt)
	require.NoError(t, err)
	assert.Len(t, got, 1, "cached quote is not recorded twice")
	got, err = r.History(ctx, domain.WrappedSOLMint, 0, quotes[1].FetchedAt)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type usdOnlySource struct{ prices map[string]float64 }

func (s usdOnlySource) Name() string { return "usd" }

func (s usdOnlySource) Price(_ context.Context, mint string) (domain.PriceQuote, error) {
	p, ok := s.prices[mint]
	if !ok {
		return domain.PriceQuote{}, ErrNoPrice
	}
	return domain.PriceQuote{Mint: mint, PriceUSD: p}, nil
}

func TestResolver_DerivesSOLPrice(t *testing.T) {
	r := NewResolver([]Source{usdOnlySource{prices: map[string]float64{
		testMint:              0.5,
		domain.WrappedSOLMint: 200,
	}}})

	q, err := r.Resolve(context.Background(), testMint)
	require.NoError(t, err)
	require.NotNil(t, q.PriceSOL)
	assert.InDelta(t, 0.0025, *q.PriceSOL, 1e-12)

	sol, err := r.Resolve(context.Background(), domain.WrappedSOLMint)
	require.NoError(t, err)
	require.NotNil(t, sol.PriceSOL)
	assert.Equal(t, 1.0, *sol.PriceSOL)
}
