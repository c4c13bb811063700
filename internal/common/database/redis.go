package database

import (
	"context"
	"fmt"
	"time"

	"agri-pipeline/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps go-redis with the few list/key helpers the result store uses.
type RedisClient struct {
	Client redis.Cmdable
	closer func() error
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisClient{Client: rdb, closer: rdb.Close}
}

// NewRedisFromCmdable wraps an existing client (tests use redismock and miniredis).
func NewRedisFromCmdable(c redis.Cmdable) *RedisClient {
	return &RedisClient{Client: c}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// SetWithIndex stores value under key and pushes key onto indexKey, trimming
// the index to the newest maxEntries. Both keys share the TTL.
func (c *RedisClient) SetWithIndex(ctx context.Context, key string, value []byte, indexKey string, maxEntries int, ttl time.Duration) error {
	pipe := c.Client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	pipe.LPush(ctx, indexKey, key)
	if maxEntries > 0 {
		pipe.LTrim(ctx, indexKey, 0, int64(maxEntries-1))
	}
	if ttl > 0 {
		pipe.Expire(ctx, indexKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %s: %w", key, err)
	}
	return nil
}
