package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	bucketIdleTTL     = 10 * time.Minute
	redisLimitPrefix  = "rate_limit:"
	redisLimitTimeout = 2 * time.Second
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket for a request; client IP by default
	KeyFunc func(c *gin.Context) string
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// DefaultRateLimitConfig covers the HTTP introspection endpoints
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:   100,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// UpgradeRateLimitConfig limits websocket upgrades per IP, which bounds
// reconnect storms from a misbehaving client
func UpgradeRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:   30,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// IngestRateLimitConfig limits event ingest per calling service
func IngestRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:   6000,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// TokenBucket for rate limiting
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request is allowed based on token availability
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// GetRetryAfter returns seconds to wait before next request
func (tb *TokenBucket) GetRetryAfter() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens < 1 {
		timeToToken := (1 - tb.tokens) / tb.refillRate
		return int(timeToToken) + 1
	}
	return 0
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// RateLimiter keeps one token bucket per key in memory
type RateLimiter struct {
	buckets map[string]*TokenBucket
	config  RateLimitConfig
	mu      sync.Mutex
}

// NewRateLimiter creates the in-memory limiter behind NewRateLimitMiddleware
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = clientIPKey
	}
	return &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
	}
}

// Allow checks if key may make another request
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets[key]
	if !exists {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow()
}

// GetRetryAfter gets retry-after seconds for key
func (rl *RateLimiter) GetRetryAfter(key string) int {
	rl.mu.Lock()
	bucket, exists := rl.buckets[key]
	rl.mu.Unlock()

	if !exists {
		return 1
	}
	return bucket.GetRetryAfter()
}

// Prune drops buckets untouched for longer than idle; an idle bucket is
// full again, so dropping it changes nothing for the client
func (rl *RateLimiter) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.idleSince().Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.config.KeyFunc(c)
		if !rl.Allow(key) {
			rejectRateLimited(c, rl.config.Limit, rl.GetRetryAfter(key))
			return
		}
		c.Next()
	}
}

// NewRateLimitMiddleware creates an in-memory rate limiting middleware whose
// idle buckets are pruned until ctx is done
func NewRateLimitMiddleware(ctx context.Context, config RateLimitConfig) gin.HandlerFunc {
	rl := NewRateLimiter(config)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Prune(bucketIdleTTL)
			}
		}
	}()

	return rl.Middleware()
}

// RedisRateLimitMiddleware shares a fixed-window limit across server
// instances. A Redis failure lets the request through: these endpoints are
// behind auth or the internal token already.
func RedisRateLimitMiddleware(client *cache.RedisClient, name string, config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = clientIPKey
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("%s%s:%s", redisLimitPrefix, name, config.KeyFunc(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), redisLimitTimeout)
		defer cancel()

		start := time.Now()
		count, err := client.IncrWindow(ctx, key, config.Window)
		metrics.RecordRedisOperation("incr_window", redisLimitPrefix+name, time.Since(start), err)
		if err != nil {
			logger.Log.Warn("Rate limit check failed, allowing request",
				logger.WithIP(c.ClientIP()),
				zap.Error(err))
			c.Next()
			return
		}

		if count > int64(config.Limit) {
			rejectRateLimited(c, config.Limit, int(config.Window.Seconds()))
			return
		}
		c.Next()
	}
}

// NewRateLimit picks the Redis limiter when client is set, in-memory otherwise
func NewRateLimit(ctx context.Context, client *cache.RedisClient, name string, config RateLimitConfig) gin.HandlerFunc {
	if client != nil {
		return RedisRateLimitMiddleware(client, name, config)
	}
	return NewRateLimitMiddleware(ctx, config)
}

func rejectRateLimited(c *gin.Context, limit, retryAfter int) {
	metrics.RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
	logger.Log.Warn("Rate limit exceeded",
		logger.WithIP(c.ClientIP()),
		zap.String("path", c.FullPath()))

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", "0")
	util.RespondWithAPIError(c, errors.RateLimited("rate limit exceeded"))
	c.Abort()
}
