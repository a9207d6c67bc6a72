package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
)

// DefaultCacheTTL is how long a resolved quote is served from cache.
const DefaultCacheTTL = 30 * time.Second

var (
	// ErrPriceUnavailable is returned when every source failed.
	ErrPriceUnavailable = apierr.New(http.StatusServiceUnavailable, apierr.CodePriceUnavailable, "price unavailable from all sources")
	ErrInvalidMint      = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid mint address")
)

// Endpoints configures the default source set.
type Endpoints struct {
	JupiterQuote string
	JupiterPrice string
	LegacyPrice  string
	DexScreener  string
	Timeout      time.Duration
}

// DefaultSources builds the cascade in its fixed order:
// jupiter_quote, jupiter_price, legacy_price, dexscreener.
func DefaultSources(e Endpoints, decimals func(mint string) int) []Source {
	return []Source{
		NewQuoteSource(e.JupiterQuote, e.Timeout, decimals),
		NewJupiterPriceSource(e.JupiterPrice, e.Timeout),
		NewLegacyPriceSource(e.LegacyPrice, e.Timeout),
		NewDexScreenerSource(e.DexScreener, e.Timeout),
	}
}

type cacheEntry struct {
	quote   domain.PriceQuote
	expires time.Time
}

// Resolver walks the sources in order and returns the first usable quote.
type Resolver struct {
	sources []Source
	ttl     time.Duration
	history storage.PriceHistoryStore
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// Option configures Resolver.
type Option func(*Resolver)

// WithCacheTTL sets the cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithHistory records every fresh resolution.
func WithHistory(h storage.PriceHistoryStore) Option {
	return func(r *Resolver) { r.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver over sources.
func NewResolver(sources []Source, opts ...Option) *Resolver {
	r := &Resolver{
		sources: sources,
		ttl:     DefaultCacheTTL,
		logger:  zap.NewNop(),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the price of mint. Concurrent misses for the same mint
// share one cascade run.
func (r *Resolver) Resolve(ctx context.Context, mint string) (*domain.PriceQuote, error) {
	q, _, err := r.lookup(ctx, mint, true)
	return q, err
}

// ResolveMany resolves each mint like Resolve and appends the fresh quotes
// to history in one batch. errs[i] is set when mints[i] has no price.
func (r *Resolver) ResolveMany(ctx context.Context, mints []string) ([]*domain.PriceQuote, []error) {
	quotes := make([]*domain.PriceQuote, len(mints))
	errs := make([]error, len(mints))
	var fresh []*domain.PriceQuote
	for i, mint := range mints {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		q, ran, err := r.lookup(ctx, mint, false)
		quotes[i], errs[i] = q, err
		if err == nil && ran {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) > 0 && r.history != nil {
		if err := r.history.RecordBatch(context.WithoutCancel(ctx), fresh); err != nil {
			r.logger.Warn("record price history batch failed", zap.Int("quotes", len(fresh)), zap.Error(err))
		}
	}
	return quotes, errs
}

// lookup serves mint from the cache or joins a cascade run. ran reports
// whether this call led the run; only the leader records history, and only
// when record is set.
func (r *Resolver) lookup(ctx context.Context, mint string, record bool) (*domain.PriceQuote, bool, error) {
	if err := solana.ValidateAddress(mint); err != nil {
		return nil, false, ErrInvalidMint.WithCause(err)
	}
	if q, ok := r.cached(mint); ok {
		observability.RecordPriceCache(true)
		return &q, false, nil
	}
	observability.RecordPriceCache(false)

	// The shared run outlives any single caller's cancellation.
	var ran bool
	ch := r.group.DoChan(mint, func() (interface{}, error) {
		ran = true
		bg := context.WithoutCancel(ctx)
		q, err := r.resolve(bg, mint)
		if err == nil && record {
			r.record(bg, q)
		}
		return q, err
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		q := res.Val.(domain.PriceQuote)
		return &q, ran, nil
	}
}

func (r *Resolver) resolve(ctx context.Context, mint string) (domain.PriceQuote, error) {
	var errs []error
	for _, src := range r.sources {
		start := r.now()
		q, err := src.Price(ctx, mint)
		elapsed := r.now().Sub(start).Seconds()
		if err != nil {
			observability.RecordPriceSource(src.Name(), "error", elapsed)
			r.logger.Debug("price source failed",
				zap.String("source", src.Name()), zap.String("mint", mint), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		observability.RecordPriceSource(src.Name(), "ok", elapsed)

		q.Mint = mint
		q.Source = src.Name()
		if q.FetchedAt == 0 {
			q.FetchedAt = r.now().UnixMilli()
		}
		r.fillSOL(ctx, &q)
		r.store(mint, q)
		return q, nil
	}

	r.logger.Warn("price unavailable", zap.String("mint", mint), zap.Int("sources", len(r.sources)))
	return domain.PriceQuote{}, errors.Join(append([]error{ErrPriceUnavailable}, errs...)...)
}

// fillSOL derives the SOL price from the USD price when the source did not report it.
func (r *Resolver) fillSOL(ctx context.Context, q *domain.PriceQuote) {
	if q.PriceSOL != nil {
		return
	}
	if q.Mint == domain.WrappedSOLMint {
		one := 1.0
		q.PriceSOL = &one
		return
	}
	sol, ok := r.cached(domain.WrappedSOLMint)
	if !ok {
		v, err, _ := r.group.Do(domain.WrappedSOLMint, func() (interface{}, error) {
			q, err := r.resolve(ctx, domain.WrappedSOLMint)
			if err == nil {
				r.record(ctx, q)
			}
			return q, err
		})
		if err != nil {
			return
		}
		sol = v.(domain.PriceQuote)
	}
	if sol.PriceUSD > 0 {
		v := q.PriceUSD / sol.PriceUSD
		q.PriceSOL = &v
	}
}

func (r *Resolver) record(ctx context.Context, q domain.PriceQuote) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, &q); err != nil {
		r.logger.Warn("record price history failed", zap.String("mint", q.Mint), zap.Error(err))
	}
}

func (r *Resolver) cached(mint string) (domain.PriceQuote, bool) {
	if r.ttl <= 0 {
		return domain.PriceQuote{}, false
	}
	r.mu.RLock()
	e, ok := r.cache[mint]
	r.mu.RUnlock()
	if !ok || !r.now().Before(e.expires) {
		return domain.PriceQuote{}, false
	}
	return e.quote, true
}

func (r *Resolver) store(mint string, q domain.PriceQuote) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cache[mint] = cacheEntry{quote: q, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

// Invalidate drops a cached quote.
func (r *Resolver) Invalidate(mint string) {
	r.mu.Lock()
	delete(r.cache, mint)
	r.mu.Unlock()
}

// PurgeExpired removes stale cache entries and returns how many were dropped.
func (r *Resolver) PurgeExpired() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for mint, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, mint)
			n++
		}
	}
	return n
}

// History returns recorded quotes for mint within [start, end] ms.
func (r *Resolver) History(ctx context.Context, mint string, start, end int64) ([]*domain.PriceQuote, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.GetByTimeRange(ctx, mint, start, end)
}
