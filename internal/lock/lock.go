// Package lock provides short-lived keyed mutual exclusion shared across
// processes. Claims hold one lock per user for the duration of a payout.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock held")

// Release gives up a lock. It is safe to call more than once.
type Release func()

// Locker acquires keyed locks that expire after ttl even if never released.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// releaseTimeout bounds the backend call made by Release.
const releaseTimeout = 5 * time.Second

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
