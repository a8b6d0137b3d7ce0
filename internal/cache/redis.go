// Package cache is the portal's Redis layer: refresh-token sessions,
// token-bucket rate limits, parse progress pub/sub and the activity
// event stream all live on one client.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// connectTimeout bounds the startup ping so a bad REDIS_URL fails
	// fast instead of hanging boot.
	connectTimeout = 5 * time.Second

	// poolSize leaves headroom for parse progress subscribers, which
	// each hold a dedicated pub/sub connection for the life of an SSE
	// stream on top of the request-scoped commands.
	poolSize = 20
)

// Cache wraps the shared Redis client.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection before returning.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.ClientName = "apply-portal"
	opt.PoolSize = poolSize
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping checks Redis connectivity, for the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for the activity stream consumer
// group commands. Everything else goes through Cache methods.
func (c *Cache) Client() *redis.Client {
	return c.client
}
