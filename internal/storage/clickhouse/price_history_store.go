package clickhouse

import (
	"context"
	"fmt"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

// PriceHistoryStore implements storage.PriceHistoryStore using ClickHouse.
type PriceHistoryStore struct {
	conn *Conn
}

// NewPriceHistoryStore creates a new PriceHistoryStore.
func NewPriceHistoryStore(conn *Conn) *PriceHistoryStore {
	return &PriceHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceHistoryStore = (*PriceHistoryStore)(nil)

// Record appends a resolved quote.
func (s *PriceHistoryStore) Record(ctx context.Context, q *domain.PriceQuote) (err error) {
	defer track("price_history.record")(&err)

	if q == nil || q.Mint == "" {
		return storage.ErrInvalidInput
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO price_history (mint, price_usd, price_sol, source, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`, q.Mint, q.PriceUSD, q.PriceSOL, q.Source, q.FetchedAt)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

// RecordBatch appends several quotes in one insert.
func (s *PriceHistoryStore) RecordBatch(ctx context.Context, quotes []*domain.PriceQuote) (err error) {
	defer track("price_history.record_batch")(&err)

	if len(quotes) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_history (mint, price_usd, price_sol, source, fetched_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, q := range quotes {
		if err := batch.Append(q.Mint, q.PriceUSD, q.PriceSOL, q.Source, q.FetchedAt); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves quotes for a mint within [start, end] (inclusive), ordered by fetched_at ASC.
func (s *PriceHistoryStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) (result []*domain.PriceQuote, err error) {
	defer track("price_history.get_by_time_range")(&err)

	rows, err := s.conn.Query(ctx, `
		SELECT mint, price_usd, price_sol, source, fetched_at
		FROM price_history
		WHERE mint = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC
	`, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	return scanPriceHistory(rows)
}

// chRows is the subset of driver.Rows used by the scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPriceHistory(rows chRows) ([]*domain.PriceQuote, error) {
	var quotes []*domain.PriceQuote

	for rows.Next() {
		var q domain.PriceQuote
		if err := rows.Scan(&q.Mint, &q.PriceUSD, &q.PriceSOL, &q.Source, &q.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan price history row: %w", err)
		}
		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history rows: %w", err)
	}
	return quotes, nil
}
