package lock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"aqua-launchpad/internal/storage/migrations"
	"aqua-launchpad/internal/storage/postgres"
)

func setupPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = migrations.RunPostgresMigrations(ctx, pool, nil)
	require.NoError(t, err)
	return pool
}

func TestPostgres(t *testing.T) {
	pool := setupPostgres(t)
	exerciseLocker(t, NewPostgres(pool, nil))
}

func TestPostgres_ExpiredTakeover(t *testing.T) {
	pool := setupPostgres(t)
	l := NewPostgres(pool, nil)
	ctx := context.Background()

	stale, err := l.TryLock(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)

	fresh, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	stale()
	_, err = l.TryLock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked, "stale release must not free the new owner")
	fresh()
}

func TestPostgres_PurgeExpired(t *testing.T) {
	pool := setupPostgres(t)
	l := NewPostgres(pool, nil)
	ctx := context.Background()

	_, err := l.TryLock(ctx, "short", 10*time.Millisecond)
	require.NoError(t, err)
	_, err = l.TryLock(ctx, "long", time.Hour)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	n, err := l.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// failingExecer grants every lock and fails every release.
type failingExecer struct{}

func (failingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if strings.HasPrefix(strings.TrimSpace(sql), "DELETE") {
		return pgconn.CommandTag{}, errors.New("connection refused")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgres_ReleaseFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewPostgres(failingExecer{}, zap.New(core))

	release, err := l.TryLock(context.Background(), "claim:user-1", time.Minute)
	require.NoError(t, err)
	release()

	entries := logs.FilterMessage("lock release failed, held until expiry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "claim:user-1", entries[0].ContextMap()["key"])
	assert.Equal(t, "connection refused", entries[0].ContextMap()["error"])
}
