package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokopos/backend/internal/domain"
)

type RedisTreeCache struct {
	client *redis.Client
}

func NewRedisTreeCache(addr string, password string, db int) *RedisTreeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTreeCache{client: client}
}

func (c *RedisTreeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTreeCache) Close() error {
	return c.client.Close()
}

func (c *RedisTreeCache) Get(ctx context.Context, key string) ([]domain.CategoryNode, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tree []domain.CategoryNode
	if err := json.Unmarshal([]byte(val), &tree); err != nil {
		return nil, false, err
	}
	return tree, true, nil
}

func (c *RedisTreeCache) Set(ctx context.Context, key string, value []domain.CategoryNode, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisTreeCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
