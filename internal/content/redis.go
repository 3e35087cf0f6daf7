package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache is a read-through cache in front of another Store. Content is immutable
// per hash, so cached entries are never invalidated, only expired.
type RedisCache struct {
	client redisClient
	next   Store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, next Store, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return newRedisCache(client, next, ttl, logger)
}

func newRedisCache(client redisClient, next Store, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client: client,
		next:   next,
		prefix: "jobevents:content:",
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisCache) key(hash common.Hash) string {
	return c.prefix + hash.Hex()
}

func (c *RedisCache) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	key := c.key(hash)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("content cache read failed", zap.String("key", key), zap.Error(err))
	}

	content, err := c.next.Fetch(ctx, hash)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, content, c.ttl).Err(); err != nil {
		c.logger.Warn("content cache write failed", zap.String("key", key), zap.Error(fmt.Errorf("redis set: %w", err)))
	}
	return content, nil
}
