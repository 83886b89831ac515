package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/utils"
)

// ConfigCache holds resolved chat configuration as explicit
// (key, payload, expiry) values. Implementations must be safe for
// unlimited concurrent readers. A nil ConfigCache is a valid "no cache"
// value at call sites.
type ConfigCache interface {
	Get(ctx context.Context, key string, out any) bool
	Set(ctx context.Context, key string, val any, ttl time.Duration)
	InvalidatePrefix(ctx context.Context, prefix string)
	Close() error
}

type redisConfigCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisConfigCache(log *logger.Logger) (ConfigCache, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisConfigCache{
		log: log.With("service", "RedisConfigCache"),
		rdb: rdb,
	}, nil
}

func (c *redisConfigCache) Get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *redisConfigCache) Set(ctx context.Context, key string, val any, ttl time.Duration) {
	raw, err := json.Marshal(val)
	if err != nil {
		c.log.Warn("Failed to marshal cache entry", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("Failed to set cache entry", "key", key, "error", err)
	}
}

func (c *redisConfigCache) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("Failed to delete cache entry", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("Cache invalidation scan failed", "prefix", prefix, "error", err)
	}
}

func (c *redisConfigCache) Close() error {
	return c.rdb.Close()
}
