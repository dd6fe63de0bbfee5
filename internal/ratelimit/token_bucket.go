package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Refills lazily from the Redis clock and takes ARGV[4] tokens when enough are
// left. Tokens come back as a string because Redis truncates Lua numbers to
// integers.
var takeTokens = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
end

local allowed = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), now}
`)

var (
	errBucketNotConfigured = errors.New("rate limiter not configured")
	errBucketReply         = errors.New("invalid rate limit script response")
)

// Limit is a refill rate in tokens per second and a bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) validate() error {
	if l.Rate <= 0 || l.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive, got rate=%v burst=%d", l.Rate, l.Burst)
	}
	return nil
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket keeps one bucket per key in Redis so every API replica shares
// the same budget.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take removes cost tokens from the bucket at key.
func (t *TokenBucket) Take(ctx context.Context, key string, limit Limit, cost int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, errBucketNotConfigured
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if err := limit.validate(); err != nil {
		return nil, err
	}
	if cost <= 0 {
		cost = 1
	}

	ttl := bucketTTL(limit)
	reply, err := takeTokens.Run(ctx, t.client, []string{key},
		limit.Rate, limit.Burst, ttl.Milliseconds(), cost,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket %s: %w", key, err)
	}
	return decodeBucketReply(reply, limit, cost)
}

func decodeBucketReply(reply []any, limit Limit, cost int) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return nil, errBucketReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, errBucketReply
	}
	raw, ok := reply[1].(string)
	if !ok {
		return nil, errBucketReply
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errBucketReply
	}
	nowMs, ok := reply[2].(int64)
	if !ok {
		return nil, errBucketReply
	}

	res := &RateLimitResult{
		Allowed:   allowed == 1,
		Limit:     limit.Burst,
		Remaining: int(math.Floor(tokens)),
		ResetTime: time.UnixMilli(nowMs),
	}
	if !res.Allowed {
		if missing := float64(cost) - tokens; missing > 0 {
			res.RetryAfter = time.Duration(missing / limit.Rate * float64(time.Second))
		}
		res.ResetTime = res.ResetTime.Add(res.RetryAfter)
	}
	return res, nil
}

// bucketTTL keeps an idle bucket for twice its full refill time.
func bucketTTL(limit Limit) time.Duration {
	if limit.validate() != nil {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(limit.Burst)/limit.Rate))
	return time.Duration(seconds) * time.Second
}
