package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rx3lixir/tunebox/pkg/logger"
)

// Cache keeps recent provider responses in Redis to stretch API quota.
// A nil Cache is valid and always misses; outages degrade to direct
// provider calls.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log}
}

func (c *Cache) GetResults(ctx context.Context, key string) ([]VideoResult, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("search cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var results []VideoResult
	if err := json.Unmarshal(raw, &results); err != nil {
		c.log.Warn("search cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *Cache) SetResults(ctx context.Context, key string, results []VideoResult) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("search cache write failed", "key", key, "error", err)
	}
}

// SearchKey builds the cache key for a keyword search
func SearchKey(query string, maxResults int) string {
	return fmt.Sprintf("search:%d:%s", maxResults, query)
}

// VideoKey builds the cache key for a per-id detail lookup
func VideoKey(videoID string) string {
	return "video:" + videoID
}
