package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// setupTestRedis returns a client against local Redis DB 15, skipping the
// test when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}
	client.FlushDB(ctx)
	return client
}

func setupTestRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func TestFixedWindowStrategy(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, &RateLimitConfig{
		Strategy: FixedWindow,
		Limit:    5,
		Window:   time.Minute,
	}, zerolog.Nop())
	router := setupTestRouter(limiter)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestSlidingWindowStrategy(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, &RateLimitConfig{
		Strategy: SlidingWindow,
		Limit:    3,
		Window:   2 * time.Second,
	}, zerolog.Nop())
	router := setupTestRouter(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// after the window slides past the first burst, requests pass again
	time.Sleep(2100 * time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestShortenQuota(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	// the production /shorten quota: 10 per minute per client
	limiter := NewRateLimiter(redisClient, &RateLimitConfig{
		Strategy: SlidingWindow,
		Limit:    10,
		Window:   time.Minute,
		KeyFunc:  IPBasedKey,
	}, zerolog.Nop())
	router := setupTestRouter(limiter)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSlidingWindowCountsEveryRequest(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, &RateLimitConfig{
		Strategy: SlidingWindow,
		Limit:    3,
		Window:   time.Minute,
	}, zerolog.Nop())

	// tight loop: timestamps may land in the same nanosecond, and each
	// request must still become its own sorted-set member
	ctx := context.Background()
	const requests = 10
	for i := 0; i < requests; i++ {
		_, _, _, err := limiter.slidingWindowCheck(ctx, "rate_limit:burst")
		assert.NoError(t, err)
	}

	count, err := redisClient.ZCard(ctx, "rate_limit:burst").Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(requests), count)
}

func TestFailOpenOnRedisError(t *testing.T) {
	// unroutable Redis: the limiter must let requests through
	broken := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer broken.Close()

	limiter := NewRateLimiter(broken, &RateLimitConfig{
		Strategy: SlidingWindow,
		Limit:    1,
		Window:   time.Minute,
	}, zerolog.Nop())
	router := setupTestRouter(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestSkipFunc(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, &RateLimitConfig{
		Strategy: FixedWindow,
		Limit:    1,
		Window:   time.Minute,
		SkipFunc: func(c *gin.Context) bool { return c.Request.URL.Path == "/test" },
	}, zerolog.Nop())
	router := setupTestRouter(limiter)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
