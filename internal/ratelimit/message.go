package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyUserMessages = "creavision:ratelimit:messages:%d"

// MessageLimiter caps how fast one user can submit chat messages.
// A nil or disabled limiter allows everything.
type MessageLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewMessageLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *MessageLimiter {
	limitCfg := cfg.RateLimit
	if client == nil || limitCfg.MessageRate <= 0 || limitCfg.MessageBurst <= 0 {
		return nil
	}
	return &MessageLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.MessageRate,
		burst:  limitCfg.MessageBurst,
		log:    log.Named("ratelimit.messages"),
	}
}

func (l *MessageLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowUser fails open when Redis is unreachable.
func (l *MessageLimiter) AllowUser(ctx context.Context, userID int64) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	decision, err := l.bucket.Take(ctx, fmt.Sprintf(keyUserMessages, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Int64("user_id", userID), zap.Error(err))
		return true, 0
	}
	return decision.Allowed, decision.RetryAfter
}
