package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBucketTTL(t *testing.T) {
	require.Equal(t, time.Second, bucketTTL(0, 5))
	require.Equal(t, 10*time.Second, bucketTTL(1, 5))
	require.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestToInt64(t *testing.T) {
	require.Equal(t, int64(3), toInt64(int64(3)))
	require.Equal(t, int64(4), toInt64("4"))
	require.Zero(t, toInt64(nil))
}

func TestTakeRequiresConfiguredBucket(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Take(context.Background(), "k", 1, 1)
	require.ErrorIs(t, err, errBucketNotConfigured)
	require.Nil(t, NewTokenBucket(nil))
}

func TestMessageLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{MessageRate: 1, MessageBurst: 3}}
	l := NewMessageLimiter(cfg, nil, zap.NewNop())
	require.False(t, l.Enabled())

	ok, retry := l.AllowUser(context.Background(), 1)
	require.True(t, ok)
	require.Zero(t, retry)
}
