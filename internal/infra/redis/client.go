package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for poll coordination.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func pollLockKey(address string) string {
	return fmt.Sprintf("poll_lock:%s", address)
}

// AcquirePollLock attempts to take the per-address poll lock. Another
// instance holding the lock means this address is already being polled.
func (c *Client) AcquirePollLock(ctx context.Context, address string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, pollLockKey(address), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleasePollLock releases the per-address poll lock.
func (c *Client) ReleasePollLock(ctx context.Context, address string) error {
	return c.rdb.Del(ctx, pollLockKey(address)).Err()
}

// Health verifies the Redis connection is alive.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
