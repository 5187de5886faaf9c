package locks

import (
	"context"

	"github.com/badrx15/creavisionbot/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locks",
	fx.Provide(NewRedisClient),
	fx.Provide(NewFromConfig),
)

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewFromConfig(cfg config.Config, client *redis.Client, log *zap.Logger) Locker {
	if client == nil {
		log.Info("using in-process locks")
		return NewKeyedMutex()
	}
	log.Info("using redis locks", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client, cfg.Redis.LockTTL, log)
}
