package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimitStrategy selects the limiting algorithm
type RateLimitStrategy string

const (
	// FixedWindow counts requests per fixed time window. Cheap, but allows
	// up to 2x the limit across a window boundary.
	FixedWindow RateLimitStrategy = "fixed_window"

	// SlidingWindow tracks request timestamps in a sorted set. Precise at
	// the cost of O(limit) memory per key.
	SlidingWindow RateLimitStrategy = "sliding_window"
)

// RateLimitConfig holds configuration for a rate limiter
type RateLimitConfig struct {
	Strategy RateLimitStrategy

	// Limit is the maximum number of requests allowed per Window
	Limit int

	// Window is the time period for the limit
	Window time.Duration

	// KeyFunc generates the rate limit key (default: client IP + path)
	KeyFunc func(*gin.Context) string

	// ErrorHandler is called when the limit is exceeded
	ErrorHandler func(*gin.Context)

	// SkipFunc exempts a request from limiting
	SkipFunc func(*gin.Context) bool
}

// RateLimiter enforces request limits backed by Redis, so the count is
// shared across all instances pointing at the same Redis.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	log    zerolog.Logger

	// seq disambiguates sorted-set members minted in the same nanosecond,
	// so simultaneous requests never collapse into one member
	seq atomic.Int64
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, log zerolog.Logger) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = IPAndPathKey
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}
	if config.SkipFunc == nil {
		config.SkipFunc = func(*gin.Context) bool { return false }
	}
	return &RateLimiter{redis: redisClient, config: config, log: log}
}

// Middleware returns the gin middleware enforcing this limiter. Redis
// failures fail open: a broken limiter must not take the service down
// with it.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := rl.config.KeyFunc(c)
		allowed, remaining, resetTime, err := rl.check(c.Request.Context(), key)
		if err != nil {
			rl.log.Error().Err(err).Str("key", key).Msg("rate limiter unavailable, failing open")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if !allowed {
			retryAfter := resetTime - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			rl.config.ErrorHandler(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, key string) (bool, int, int64, error) {
	switch rl.config.Strategy {
	case SlidingWindow:
		return rl.slidingWindowCheck(ctx, key)
	default:
		return rl.fixedWindowCheck(ctx, key)
	}
}

// fixedWindowCheck increments a per-window counter. The key embeds the
// window start so counters reset naturally; the TTL is 2x the window to
// ride out clock skew.
func (rl *RateLimiter) fixedWindowCheck(ctx context.Context, key string) (bool, int, int64, error) {
	now := time.Now()
	windowStart := now.Truncate(rl.config.Window).Unix()
	windowKey := fmt.Sprintf("%s:%d", key, windowStart)

	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, rl.config.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, err
	}

	count := int(incrCmd.Val())
	resetTime := windowStart + int64(rl.config.Window.Seconds())

	allowed := count <= rl.config.Limit
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, resetTime, nil
}

// slidingWindowCheck keeps one sorted-set member per request, scored by
// timestamp, and counts the members still inside the window.
func (rl *RateLimiter) slidingWindowCheck(ctx context.Context, key string) (bool, int, int64, error) {
	now := time.Now()
	windowStart := now.Add(-rl.config.Window).UnixNano()
	nowNano := now.UnixNano()
	member := fmt.Sprintf("%d-%d", nowNano, rl.seq.Add(1))

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowNano), Member: member})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, err
	}

	count := int(zcardCmd.Val())
	resetTime := now.Add(rl.config.Window).Unix()

	allowed := count <= rl.config.Limit
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, resetTime, nil
}

func defaultErrorHandler(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"code":    http.StatusTooManyRequests,
		"message": "Rate limit exceeded. Please try again later.",
	})
}

// IPAndPathKey keys the limit on client IP and request path
func IPAndPathKey(c *gin.Context) string {
	return fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.Request.URL.Path)
}

// IPBasedKey keys the limit on client IP only
func IPBasedKey(c *gin.Context) string {
	return fmt.Sprintf("rate_limit:ip:%s", c.ClientIP())
}

// SkipHealthCheck exempts liveness probes from rate limiting
func SkipHealthCheck(c *gin.Context) bool {
	return c.Request.URL.Path == "/health"
}
