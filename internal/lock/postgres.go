package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Execer is the subset of a pgx pool used by the Postgres locker.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Locker backed by the claim_locks table.
// An expired row is taken over by the next TryLock.
type Postgres struct {
	db     Execer
	logger *zap.Logger
}

// NewPostgres creates a Postgres locker.
func NewPostgres(db Execer, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

var _ Locker = (*Postgres)(nil)

func (p *Postgres) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := newToken()
	tag, err := p.db.Exec(ctx, `
		INSERT INTO claim_locks (lock_key, token, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 millisecond')
		ON CONFLICT (lock_key) DO UPDATE
			SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
			WHERE claim_locks.expires_at <= now()
	`, key, token, ttl.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("postgres lock %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if _, err := p.db.Exec(ctx, `DELETE FROM claim_locks WHERE lock_key = $1 AND token = $2`, key, token); err != nil {
				p.logger.Warn("lock release failed, held until expiry",
					zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
			}
		})
	}, nil
}

// PurgeExpired deletes expired rows.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM claim_locks WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge claim locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
