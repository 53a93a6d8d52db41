package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// bucketScript refills and debits one bucket atomically. Time comes from
// the Redis server so that instances with skewed clocks agree.
//
// KEYS[1] bucket hash; ARGV max_tokens, refill_rate (tokens/s), requested.
// Returns {allowed 0|1, floor(remaining)}.
var bucketScript = redis.NewScript(`
local max_tokens = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or max_tokens
local ts = tonumber(state[2]) or now

if now > ts then
    tokens = math.min(max_tokens, tokens + (now - ts) / 1000000.0 * rate)
end

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
local idle = math.max(60, math.ceil(max_tokens / rate * 2))
redis.call("EXPIRE", KEYS[1], idle)

return {allowed, math.floor(tokens)}
`)

// RedisBackend keeps buckets in Redis hashes shared by every instance.
type RedisBackend struct {
	client redis.Scripter
	prefix string
}

// NewRedisBackend creates a Redis-backed rate limiting backend.
func NewRedisBackend(client redis.Scripter) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "cachebridge:rl:",
	}
}

func (b *RedisBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	res, err := bucketScript.Run(ctx, b.client, []string{b.prefix + key}, maxTokens, refillRate, requested).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis rate limit check: unexpected reply %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}
