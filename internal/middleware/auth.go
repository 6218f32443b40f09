package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// 认证后写入 gin.Context 的键
const (
	ContextUsername = "username"
	ContextUserID   = "user_id"
)

// ErrMissingToken 表示请求既没有 Authorization 头也没有 token 查询参数
var ErrMissingToken = errors.New("missing token")

// Auth 返回一个 Gin 中间件，用于验证 JWT token。
// 浏览器的 WebSocket 无法自定义请求头，所以也接受 ?token= 查询参数。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				logrus.Warn("Auth middleware: Missing token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Warn("Reason: Token is expired")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		username, ok := claims["username"].(string)
		if !ok || username == "" {
			logrus.Error("Auth middleware: 'username' claim missing in token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		c.Set(ContextUsername, username)
		// JWT 数字默认为 float64
		if id, ok := claims["user_id"].(float64); ok && id > 0 {
			c.Set(ContextUserID, uint(id))
		}
		logrus.WithField("identity", username).Debug("Auth middleware: User authenticated via JWT")

		c.Next()
	}
}

// extractToken 优先读取 Bearer 头，其次读取 token 查询参数
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
