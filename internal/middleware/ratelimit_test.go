package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func get(router http.Handler, clientID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	config := RateLimitConfig{
		Limit:  3,
		Window: time.Second,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}

	router := limitedRouter(NewRateLimiter(config).Middleware())

	// First 3 requests should succeed
	for i := 0; i < 3; i++ {
		w := get(router, "")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	// 4th request should be rate limited
	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "4th request should be rate limited")
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))

	// Wait for window to expire
	time.Sleep(time.Second + 100*time.Millisecond)

	// Should work again after window expires
	w = get(router, "")
	assert.Equal(t, http.StatusOK, w.Code, "Request after window should succeed")
}

func TestRateLimiterDifferentClients(t *testing.T) {
	config := RateLimitConfig{
		Limit:  2,
		Window: time.Second,
		KeyFunc: func(c *gin.Context) string {
			return c.GetHeader("X-Client-ID")
		},
	}

	router := limitedRouter(NewRateLimiter(config).Middleware())

	// Client A makes 2 requests (at limit)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(router, "client-a").Code)
	}

	// Client A is now rate limited
	assert.Equal(t, http.StatusTooManyRequests, get(router, "client-a").Code, "Client A should be rate limited")

	// Client B should still work
	assert.Equal(t, http.StatusOK, get(router, "client-b").Code, "Client B should not be rate limited")
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 5, Window: time.Minute})
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.Len())

	assert.Equal(t, 0, rl.Prune(time.Hour))
	assert.Equal(t, 2, rl.Len())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, rl.Prune(time.Millisecond))
	assert.Equal(t, 0, rl.Len())
}

func TestNewRateLimitFallsBackToMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := limitedRouter(NewRateLimit(ctx, nil, "test", RateLimitConfig{Limit: 1, Window: time.Minute}))

	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "").Code)
}

func TestRedisRateLimit(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set, skipping redis rate limit test")
	}
	client, err := cache.NewRedisClient(host, os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	defer client.Close()

	name := "test_" + time.Now().Format("150405.000000")
	router := limitedRouter(RedisRateLimitMiddleware(client, name, RateLimitConfig{Limit: 2, Window: time.Minute}))

	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusOK, get(router, "").Code)
	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestDefaultConfigs(t *testing.T) {
	defaultConfig := DefaultRateLimitConfig()
	assert.Equal(t, 100, defaultConfig.Limit)
	assert.Equal(t, time.Minute, defaultConfig.Window)
	assert.NotNil(t, defaultConfig.KeyFunc)

	upgradeConfig := UpgradeRateLimitConfig()
	assert.Equal(t, 30, upgradeConfig.Limit)
	assert.Equal(t, time.Minute, upgradeConfig.Window)

	ingestConfig := IngestRateLimitConfig()
	assert.Equal(t, 6000, ingestConfig.Limit)
	assert.NotNil(t, ingestConfig.KeyFunc)
}
