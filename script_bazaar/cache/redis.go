package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"script_ink/script_bazaar/lineage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func lineageKey(rootId uuid.UUID) string {
	return "lineage:" + rootId.String()
}

type RedisLineageCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ LineageCache = (*RedisLineageCache)(nil)

func NewRedisLineageCache(redisUrl string, ttl time.Duration) (*RedisLineageCache, error) {
	opts, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return NewRedisLineageCacheWithClient(client, ttl), nil
}

func NewRedisLineageCacheWithClient(client *redis.Client, ttl time.Duration) *RedisLineageCache {
	return &RedisLineageCache{client: client, ttl: ttl}
}

func (c *RedisLineageCache) Get(ctx context.Context, rootId uuid.UUID) (*lineage.Lineage, error) {
	data, err := c.client.Get(ctx, lineageKey(rootId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Error("error reading lineage from redis", "root_id", rootId, "error", err)
		return nil, fmt.Errorf("error reading cached lineage: %w", err)
	}

	var value lineage.Lineage
	if err := json.Unmarshal(data, &value); err != nil {
		slog.Warn("dropping malformed cached lineage", "root_id", rootId, "error", err)
		_ = c.client.Del(ctx, lineageKey(rootId)).Err()
		return nil, nil
	}

	return &value, nil
}

func (c *RedisLineageCache) Set(ctx context.Context, value lineage.Lineage) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error encoding lineage: %w", err)
	}

	if err := c.client.Set(ctx, lineageKey(value.RootId), data, c.ttl).Err(); err != nil {
		slog.Error("error writing lineage to redis", "root_id", value.RootId, "error", err)
		return fmt.Errorf("error caching lineage: %w", err)
	}
	return nil
}

func (c *RedisLineageCache) Invalidate(ctx context.Context, rootId uuid.UUID) error {
	if err := c.client.Del(ctx, lineageKey(rootId)).Err(); err != nil {
		slog.Error("error invalidating cached lineage", "root_id", rootId, "error", err)
		return fmt.Errorf("error invalidating cached lineage: %w", err)
	}
	return nil
}

func (c *RedisLineageCache) Close() error {
	return c.client.Close()
}
