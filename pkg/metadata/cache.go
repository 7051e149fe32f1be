package metadata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus metrics for the metadata cache.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_metadata_cache_hits_total",
		Help: "Metadata cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_metadata_cache_misses_total",
		Help: "Metadata cache misses",
	})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pxfetch_metadata_cache_errors_total",
		Help: "Metadata cache operation errors",
	}, []string{"operation"})
)

// Cache is a Redis read-through layer over a Store. A run that revisits
// table paths (resumed downloads, repeated filters) avoids re-reading the
// backing store; a cache failure falls back to the store rather than
// failing the operation.
type Cache struct {
	store Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache wraps store with a Redis cache. TTL bounds how long a cached
// document may serve reads before the store is consulted again.
func NewCache(store Store, redisClient *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{store: store, redis: redisClient, ttl: ttl}
}

func cacheKey(path string) string {
	return "pxfetch:meta:" + strings.Trim(path, "/")
}

// Save writes through: store first, then cache.
func (c *Cache) Save(ctx context.Context, path string, doc []byte) error {
	if err := c.store.Save(ctx, path, doc); err != nil {
		return err
	}
	if err := c.redis.Set(ctx, cacheKey(path), doc, c.ttl).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
	}
	return nil
}

// Load reads from Redis, falling back to the store on miss or error and
// repopulating the cache.
func (c *Cache) Load(ctx context.Context, path string) ([]byte, error) {
	doc, err := c.redis.Get(ctx, cacheKey(path)).Bytes()
	if err == nil {
		cacheHitsTotal.Inc()
		return doc, nil
	}
	if err != redis.Nil {
		cacheErrorsTotal.WithLabelValues("get").Inc()
	} else {
		cacheMissesTotal.Inc()
	}

	doc, err = c.store.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.redis.Set(ctx, cacheKey(path), doc, c.ttl).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
	}
	return doc, nil
}

// Walk delegates to the backing store; listings are not cached.
func (c *Cache) Walk(ctx context.Context, fn func(path string) error) error {
	return c.store.Walk(ctx, fn)
}

// Invalidate drops the cached copy of one document.
func (c *Cache) Invalidate(ctx context.Context, path string) error {
	if err := c.redis.Del(ctx, cacheKey(path)).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("invalidate metadata cache: %w", err)
	}
	return nil
}
