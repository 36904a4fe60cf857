package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to the Redis instance at url ("redis://host:port/db").
// A non-empty password or non-zero db overrides what the URL carries.
func NewCache(url, password string, db int, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{
		client: client,
		ttl:    ttl,
	}, nil
}

func hintKey(tenantID, coreHash string) string {
	return fmt.Sprintf("hint:%s:%s", tenantID, coreHash)
}

// GetFingerprintHint returns the fingerprint id last confirmed for a core hash,
// or "" on a miss.
func (c *Cache) GetFingerprintHint(ctx context.Context, tenantID, coreHash string) (string, error) {
	val, err := c.client.Get(ctx, hintKey(tenantID, coreHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get error: %w", err)
	}
	return val, nil
}

// SetFingerprintHint remembers which fingerprint a core hash resolved to.
func (c *Cache) SetFingerprintHint(ctx context.Context, tenantID, coreHash, fingerprintID string) error {
	if err := c.client.Set(ctx, hintKey(tenantID, coreHash), fingerprintID, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// CheckRateLimit counts a hit against identifier in a fixed window that starts
// with the first hit. It reports whether the count is still within limit.
func (c *Cache) CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("rl:%s", identifier)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check error: %w", err)
	}

	// a negative TTL means the counter has no expiry yet: a fresh window, or
	// a key whose EXPIRE never landed
	if ttl.Val() < 0 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit check error: %w", err)
		}
	}

	return incr.Val() <= int64(limit), nil
}

func metricKey(metric string) string {
	return fmt.Sprintf("metric:%s", metric)
}

// IncrementMetric increments a counter metric.
func (c *Cache) IncrementMetric(ctx context.Context, metric string) error {
	return c.client.Incr(ctx, metricKey(metric)).Err()
}

// GetMetric retrieves a metric value.
func (c *Cache) GetMetric(ctx context.Context, metric string) (int64, error) {
	val, err := c.client.Get(ctx, metricKey(metric)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache get error: %w", err)
	}
	return val, nil
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
