package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	authStatusKeyPrefix = "calendar:authstatus:"
	// authStatusTTL keeps probe results short-lived: a revoked grant should
	// stop being honored within a minute.
	authStatusTTL = 60 * time.Second
)

// RedisAuthStatusCache caches provider auth-status probes per user so the
// resolver does not hit the gateway on every write.
type RedisAuthStatusCache struct {
	client *redis.Client
}

func NewRedisAuthStatusCache(client *redis.Client) *RedisAuthStatusCache {
	return &RedisAuthStatusCache{client: client}
}

func (c *RedisAuthStatusCache) Get(ctx context.Context, userKey string) (*bool, error) {
	data, err := c.client.Get(ctx, authStatusKey(userKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth status: %w", err)
	}

	authorized := data == "1"
	return &authorized, nil
}

func (c *RedisAuthStatusCache) Set(ctx context.Context, userKey string, authorized bool) error {
	value := "0"
	if authorized {
		value = "1"
	}
	if err := c.client.Set(ctx, authStatusKey(userKey), value, authStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set auth status: %w", err)
	}
	return nil
}

func authStatusKey(userKey string) string {
	return authStatusKeyPrefix + userKey
}
