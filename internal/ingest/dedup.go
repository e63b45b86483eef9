package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/analyst/internal/logger"
)

// DedupCache is the redis fast path in front of the store's dedup-key lookup.
// Only fully processed keys are cached, so a hit means already_processed with
// no database roundtrip. Redis being down degrades to store lookups; it never
// fails ingestion.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewDedupCache creates a cache with the given key TTL. A nil client disables
// the cache entirely.
func NewDedupCache(client *redis.Client, ttl time.Duration, log logger.Logger) *DedupCache {
	return &DedupCache{client: client, ttl: ttl, logger: log}
}

func (c *DedupCache) key(dedupKey string) string {
	return fmt.Sprintf("analyst:processed:%s", dedupKey)
}

// HasProcessed reports whether a dedup key is cached as processed. Errors are
// logged and treated as a miss.
func (c *DedupCache) HasProcessed(ctx context.Context, dedupKey string) bool {
	if c == nil || c.client == nil {
		return false
	}

	exists, err := c.client.Exists(ctx, c.key(dedupKey)).Result()
	if err != nil {
		c.logger.Warn("redis dedup check failed, falling back to store",
			logger.String("dedup_key", dedupKey),
			logger.Error(err))
		return false
	}
	return exists == 1
}

// MarkProcessed caches a dedup key after its unit reached processed. Errors
// are logged; the store remains the source of truth.
func (c *DedupCache) MarkProcessed(ctx context.Context, dedupKey string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Set(ctx, c.key(dedupKey), "1", c.ttl).Err(); err != nil {
		c.logger.Warn("redis dedup mark failed",
			logger.String("dedup_key", dedupKey),
			logger.Error(err))
	}
}

// Clear drops one key from the cache.
func (c *DedupCache) Clear(ctx context.Context, dedupKey string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(dedupKey)).Err()
}
