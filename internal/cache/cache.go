package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "processed:"

// Cache stores processed PNG images in Redis keyed by image ID.
// A nil *Cache is valid and behaves as a disabled cache, so callers do not
// need to branch on configuration.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given address and verifies the connection.
func New(ctx context.Context, address string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}

	slog.Info("processed image cache connected", "address", address, "ttl", ttl)

	return &Cache{
		client: client,
		ttl:    ttl,
	}, nil
}

// Get returns the cached processed image for the ID, or ok=false on a miss.
// Cache errors are logged and reported as misses; the caller falls back to
// the database.
func (c *Cache) Get(ctx context.Context, id string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed", "id", id, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set stores the processed image under the configured TTL
func (c *Cache) Set(ctx context.Context, id string, data []byte) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, keyPrefix+id, data, c.ttl).Err(); err != nil {
		slog.Warn("cache set failed", "id", id, "error", err)
	}
}

// Delete evicts the processed image for the ID
func (c *Cache) Delete(ctx context.Context, ids ...string) {
	if c == nil || len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache delete failed", "ids", ids, "error", err)
	}
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
