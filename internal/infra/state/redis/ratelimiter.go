package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript 递增计数，只在窗口的第一次请求时设置过期时间。
// 后续请求不会推迟过期，窗口到期后计数重新开始。
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RateLimiter 是 repository.RateLimiter 的 Redis 实现 (固定窗口计数)。
type RateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRateLimiter 创建 RateLimiter 实例
func NewRateLimiter(client *redis.Client, keyPrefix string) *RateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RateLimiter")
	}
	if keyPrefix == "" {
		keyPrefix = "chat:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}
}

func (r *RateLimiter) rateLimitKey(key string) string {
	return r.keyPrefix + "ratelimit:" + key
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	count, err := fixedWindowScript.Run(ctx, r.client, []string{fullKey}, ms).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit check failed on key %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}
