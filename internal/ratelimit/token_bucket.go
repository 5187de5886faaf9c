package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash. ARGV: refill per second, capacity, ttl in ms.
// Returns {allowed, whole tokens left, ms until the next token}.
const takeTokenScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local nowMs = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
else
  local elapsed = math.max(0, nowMs - last)
  tokens = math.min(capacity, tokens + (elapsed / 1000) * refill)
end

local allowed = 0
local waitMs = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  waitMs = math.ceil(((1 - tokens) / refill) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", nowMs)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens), waitMs}
`

var (
	errBucketNotConfigured = errors.New("token bucket not configured")
	errInvalidBucket       = errors.New("token bucket needs a key, a positive rate and a positive burst")
	errBadScriptReply      = errors.New("unexpected token bucket reply")
)

// TokenBucket refills at a fixed rate per key; each take is atomic inside Redis.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeTokenScript)}
}

func (b *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if b == nil || b.client == nil {
		return Decision{}, errBucketNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Decision{}, errInvalidBucket
	}

	reply, err := b.script.Run(ctx, b.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, errBadScriptReply
	}

	return Decision{
		Allowed:    toInt64(reply[0]) == 1,
		Remaining:  toInt64(reply[1]),
		RetryAfter: time.Duration(toInt64(reply[2])) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle bucket around for two full refills.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	return time.Duration(math.Max(1, math.Ceil(2*float64(burst)/rate))) * time.Second
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}
