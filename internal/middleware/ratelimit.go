package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/repository"
)

// RateLimit 返回一个 Gin 中间件，按客户端 IP 做固定窗口限流。
func RateLimit(limiter repository.RateLimiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("RateLimiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 服务在反向代理后面时需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := "http:" + c.ClientIP()
		exceeded, err := limiter.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: limiter check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}
		if exceeded {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
