package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-chat/internal/middleware"
)

const secret = "middleware-secret"

func signed(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", middleware.Auth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString(middleware.ContextUsername)})
	})
	return r
}

func TestAuth_BearerHeader(t *testing.T) {
	token := signed(t, jwt.MapClaims{"username": "alice", "user_id": 1, "exp": time.Now().Add(time.Hour).Unix()}, secret)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice"}`, rec.Body.String())
}

func TestAuth_QueryToken(t *testing.T) {
	token := signed(t, jwt.MapClaims{"username": "bob", "exp": time.Now().Add(time.Hour).Unix()}, secret)
	rec := httptest.NewRecorder()

	authRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"bob"}`, rec.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	expired := signed(t, jwt.MapClaims{"username": "alice", "exp": time.Now().Add(-time.Hour).Unix()}, secret)
	wrongKey := signed(t, jwt.MapClaims{"username": "alice", "exp": time.Now().Add(time.Hour).Unix()}, "other")
	noUsername := signed(t, jwt.MapClaims{"user_id": 3, "exp": time.Now().Add(time.Hour).Unix()}, secret)

	cases := map[string]string{
		"missing":     "",
		"malformed":   "Token abc",
		"expired":     "Bearer " + expired,
		"wrong key":   "Bearer " + wrongKey,
		"no username": "Bearer " + noUsername,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			authRouter().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

type countingLimiter struct {
	count int
	err   error
}

func (l *countingLimiter) CheckRateLimit(_ context.Context, _ string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.count++
	return l.count > limit, nil
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &countingLimiter{}
	r := gin.New()
	r.GET("/ping", middleware.RateLimit(limiter, 2, time.Minute), func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	limiter.err = errors.New("redis down")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
