package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// Cooldown is a per-key "at most once per TTL" gate backed by Redis.
type Cooldown struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCooldown(rdb *redis.Client, prefix string, ttl time.Duration) *Cooldown {
	return &Cooldown{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Acquire returns true when key was not used within the TTL and marks it used.
func (c *Cooldown) Acquire(ctx context.Context, key string) (bool, error) {
	if c.ttl <= 0 {
		return true, nil
	}
	ok, err := c.rdb.SetNX(ctx, c.prefix+key, time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis cooldown %s: %w", key, err)
	}
	return ok, nil
}

// Release clears the cooldown for key.
func (c *Cooldown) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}
