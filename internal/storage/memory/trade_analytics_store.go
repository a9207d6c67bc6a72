package memory

import (
	"context"
	"sync"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TradeAnalyticsStore is an in-memory implementation of storage.TradeAnalyticsStore.
type TradeAnalyticsStore struct {
	mu     sync.RWMutex
	trades []domain.Trade
}

// NewTradeAnalyticsStore creates a new in-memory trade analytics store.
func NewTradeAnalyticsStore() *TradeAnalyticsStore {
	return &TradeAnalyticsStore{}
}

// Record appends an executed trade.
func (s *TradeAnalyticsStore) Record(_ context.Context, t *domain.Trade) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

// Volume aggregates trades for a mint within [start, end] (inclusive).
func (s *TradeAnalyticsStore) Volume(_ context.Context, mint string, start, end int64) (*storage.VolumeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.VolumeStats{Mint: mint}
	users := make(map[string]struct{})
	for _, t := range s.trades {
		if t.Mint != mint || t.CreatedAt < start || t.CreatedAt > end {
			continue
		}
		stats.Trades++
		if t.Side == domain.SideBuy {
			stats.Buys++
		} else {
			stats.Sells++
		}
		stats.VolumeSOL += t.SOLAmount
		stats.FeesSOL += t.FeeLamports
		users[t.UserID] = struct{}{}
	}
	stats.UniqueUsers = uint64(len(users))
	return stats, nil
}

var _ storage.TradeAnalyticsStore = (*TradeAnalyticsStore)(nil)
