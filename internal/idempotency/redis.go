package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "idem:"
	processingMarker = "__processing__"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisAddr string) (*RedisCache, error) {
	const op = "idempotency.NewRedisCache"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, requestID string) ([]byte, bool, error) {
	const op = "idempotency.RedisCache.Get"

	val, err := c.client.Get(ctx, keyPrefix+requestID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if strings.HasPrefix(val, processingMarker) {
		return nil, false, ErrInProgress
	}

	return []byte(val), true, nil
}

func (c *RedisCache) BeginProcessing(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	const op = "idempotency.RedisCache.BeginProcessing"

	ok, err := c.client.SetNX(ctx, keyPrefix+requestID, processingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

func (c *RedisCache) Store(ctx context.Context, requestID string, result []byte, ttl time.Duration) error {
	const op = "idempotency.RedisCache.Store"

	if err := c.client.Set(ctx, keyPrefix+requestID, result, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *RedisCache) Release(ctx context.Context, requestID string) error {
	const op = "idempotency.RedisCache.Release"

	if err := c.client.Del(ctx, keyPrefix+requestID).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
