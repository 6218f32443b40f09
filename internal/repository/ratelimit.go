package repository

import (
	"context"
	"time"
)

// RateLimiter 检查给定 key 的请求频率是否超限，并递增计数。
// 返回 true 表示超限。
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
