package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const defaultRedisPrefix = "medguide:cache:"

// RedisCache shares results between replicas
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisCache creates a redis-backed cache. The connection is lazy, so an
// unreachable server surfaces as errors from Get and Put.
func NewRedisCache(cfg types.RedisConfig) *RedisCache {
	return newRedisCache(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, cfg.KeyPrefix)
}

func newRedisCache(opts *redis.Options, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{
		rdb:    redis.NewClient(opts),
		prefix: prefix,
		now:    time.Now,
	}
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns a live entry
func (c *RedisCache) Get(ctx context.Context, key string) (*types.ProviderResult, bool, error) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if entry.Expired(c.now()) || entry.Value == nil {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Put stores value with SET ... EX
func (c *RedisCache) Put(ctx context.Context, key string, value *types.ProviderResult, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(newEntry(key, value, ttl, c.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Len counts keys under the prefix; 0 when redis is unreachable
func (c *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count := 0
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() != nil {
		return 0
	}
	return count
}

// Close closes the client
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
