// Package cache provides the Redis-backed comment list cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"folio/internal/comments"
)

const DefaultTTL = 60 * time.Second

var _ comments.Cache = (*RedisCache)(nil)

// RedisCache stores each page's comment list as one JSON value.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "comments:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(page string) string {
	return c.prefix + page
}

func (c *RedisCache) Get(ctx context.Context, page string) ([]comments.Comment, bool, error) {
	raw, err := c.client.Get(ctx, c.key(page)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached comments: %w", err)
	}

	var items []comments.Comment
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached comments: %w", err)
	}
	if items == nil {
		items = []comments.Comment{}
	}
	return items, true, nil
}

func (c *RedisCache) Set(ctx context.Context, page string, items []comments.Comment) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	if err := c.client.Set(ctx, c.key(page), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache comments: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, page string) error {
	if err := c.client.Del(ctx, c.key(page)).Err(); err != nil {
		return fmt.Errorf("invalidate comments: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
