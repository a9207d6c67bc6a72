package clickhouse

import (
	"context"
	"fmt"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// TradeAnalyticsStore implements storage.TradeAnalyticsStore using ClickHouse.
// trade_events is a ReplacingMergeTree keyed by id, so re-recording a trade
// collapses on merge; Volume reads with FINAL.
type TradeAnalyticsStore struct {
	conn *Conn
}

// NewTradeAnalyticsStore creates a new TradeAnalyticsStore.
func NewTradeAnalyticsStore(conn *Conn) *TradeAnalyticsStore {
	return &TradeAnalyticsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeAnalyticsStore = (*TradeAnalyticsStore)(nil)

// Record appends an executed trade.
func (s *TradeAnalyticsStore) Record(ctx context.Context, t *domain.Trade) (err error) {
	defer track("trade_events.record")(&err)

	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO trade_events (
			id, user_id, wallet, mint, side, sol_amount, token_amount, price_sol, fee_lamports, signature, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Wallet, t.Mint, string(t.Side), t.SOLAmount, t.TokenAmount,
		t.PriceSOL, t.FeeLamports, t.Signature, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade event: %w", err)
	}
	return nil
}

// Volume aggregates trades for a mint within [start, end] (inclusive).
func (s *TradeAnalyticsStore) Volume(ctx context.Context, mint string, start, end int64) (stats *storage.VolumeStats, err error) {
	defer track("trade_events.volume")(&err)

	stats = &storage.VolumeStats{Mint: mint}
	err = s.conn.QueryRow(ctx, `
		SELECT
			count(),
			countIf(side = 'buy'),
			countIf(side = 'sell'),
			sum(sol_amount),
			sum(fee_lamports),
			uniqExact(user_id)
		FROM trade_events FINAL
		WHERE mint = ? AND created_at >= ? AND created_at <= ?
	`, mint, start, end).Scan(
		&stats.Trades, &stats.Buys, &stats.Sells, &stats.VolumeSOL, &stats.FeesSOL, &stats.UniqueUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("query trade volume: %w", err)
	}
	return stats, nil
}
