package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the prefix for short code keys in Redis
const KeyPrefix = "link:"

// Options configures the Redis connection. URL, when set, takes precedence
// over the atomic fields.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	URL      string
}

// RedisCache is the volatile code-to-URL cache. It is best-effort: every
// entry carries an explicit TTL and the service treats any failure as a
// miss.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache and verifies connectivity
func NewRedisCache(opts Options) (*RedisCache, error) {
	var ropts *redis.Options
	if opts.URL != "" {
		var err error
		ropts, err = redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
	} else {
		ropts = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}
	if opts.PoolSize > 0 {
		ropts.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves the URL cached for a short code. A missing key returns
// ("", nil).
func (r *RedisCache) Get(ctx context.Context, code string) (string, error) {
	val, err := r.client.Get(ctx, KeyPrefix+code).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get from Redis: %w", err)
	}
	return val, nil
}

// Set stores the URL for a short code with the given TTL. The TTL bounds
// the entry to the link's authoritative expiry, so a non-positive TTL is
// never written.
func (r *RedisCache) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, KeyPrefix+code, url, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

// Delete removes a short code from the cache
func (r *RedisCache) Delete(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, KeyPrefix+code).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Client returns the underlying Redis client, shared with the rate limiter
func (r *RedisCache) Client() *redis.Client {
	return r.client
}
