package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Lua numbers come back from redis truncated to integers, so the remaining
// token count is floored.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens, now}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidBucket = errors.New("rate limiter key, rate and burst are required")
)

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket at key, refilled at rate tokens per
// second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Result{}, ErrInvalidBucket
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 3 {
		return Result{}, errors.New("unexpected rate limit script response")
	}

	out := Result{
		Allowed:   toInt64(res[0]) == 1,
		Limit:     burst,
		Remaining: int(toInt64(res[1])),
	}
	if !out.Allowed {
		out.RetryAfter = retryAfter(float64(out.Remaining), rate)
	}
	return out, nil
}

func retryAfter(remaining, rate float64) time.Duration {
	needed := 1 - remaining
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(needed / rate * float64(time.Second))
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}
