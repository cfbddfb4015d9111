package nli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "nli:scores:"

// RedisCache stores score triples in Redis with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get retrieves scores from Redis
func (c *RedisCache) Get(ctx context.Context, key string) (Scores, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Scores{}, false, nil
	}
	if err != nil {
		return Scores{}, false, fmt.Errorf("get scores: %w", err)
	}

	var s Scores
	if err := json.Unmarshal(data, &s); err != nil {
		return Scores{}, false, fmt.Errorf("unmarshal scores: %w", err)
	}
	return s, true, nil
}

// Set stores scores in Redis
func (c *RedisCache) Set(ctx context.Context, key string, scores Scores) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set scores: %w", err)
	}
	return nil
}
