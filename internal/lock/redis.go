package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedis creates a Redis locker. Keys are stored as prefix+key.
func NewRedis(client redis.UniversalClient, prefix string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

var _ Locker = (*Redis)(nil)

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	k := r.prefix + key
	token := newToken()
	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := unlockScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
				r.logger.Warn("lock release failed, held until expiry",
					zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
			}
		})
	}, nil
}
