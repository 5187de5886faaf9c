package locks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultRetryInterval = 50 * time.Millisecond
	releaseTimeout       = 2 * time.Second
	keyPrefix            = "creavision:lock:"
)

// RedisLocker is a Locker shared by every process pointing at the same Redis.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client        *redis.Client
	script        *redis.Script
	ttl           time.Duration
	retryInterval time.Duration
	log           *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client:        client,
		script:        redis.NewScript(lockReleaseScript),
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
		log:           log.Named("locks.redis"),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{keyPrefix + key}, token).Err()
}

// Lock polls TryLock until it wins or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := l.Release(ctx, key, token); err != nil {
			l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
}
