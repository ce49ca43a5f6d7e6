package blobcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/db"
	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/storage"
)

// store is the consumer interface for the blob cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedSource keeps raw blobs in a shared key-value store so that server
// replicas do not each pull the dataset from the object store.
type CachedSource struct {
	inner      storage.BlobSource
	store      store
	ttl        time.Duration
	prefix     string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var _ storage.BlobSource = (*CachedSource)(nil)

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner storage.BlobSource,
	s store,
	ttl time.Duration,
	prefix string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedSource {
	return &CachedSource{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		prefix:     prefix,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Fetch returns the cached blob or fetches it from the inner source.
// Cache failures are logged and never surface to the caller.
func (c *CachedSource) Fetch(ctx context.Context, loc domain.Location) ([]byte, error) {
	key := c.cacheKey(loc)

	if data, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return data, nil
	}

	c.incCache("miss")

	data, err := c.inner.Fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	c.putToCache(ctx, key, data)
	return data, nil
}

// Invalidate drops the cached blob for loc.
func (c *CachedSource) Invalidate(ctx context.Context, loc domain.Location) error {
	if err := c.store.Del(ctx, c.cacheKey(loc)); err != nil {
		return fmt.Errorf("invalidate %s: %w", loc, err)
	}
	return nil
}

func (c *CachedSource) cacheKey(loc domain.Location) string {
	return c.prefix + "blob:" + loc.String()
}

func (c *CachedSource) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedSource) getFromCache(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached blob", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (c *CachedSource) putToCache(ctx context.Context, key string, data []byte) {
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache blob", zap.String("key", key), zap.Error(err))
	}
}
