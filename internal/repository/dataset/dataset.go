// Package dataset loads and parses the slide dataset blob, keeping the
// parsed result for a short TTL.
package dataset

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pathology-bites/slidedex/internal/cache/ttl"
	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// blobSource is the consumer interface for the object store (ISP).
type blobSource interface {
	Fetch(ctx context.Context, loc domain.Location) ([]byte, error)
}

// invalidator is implemented by sources that keep their own copy of the blob.
type invalidator interface {
	Invalidate(ctx context.Context, loc domain.Location) error
}

const defaultLoadTimeout = 30 * time.Second

// Metrics groups the collectors the repository reports to. Nil fields are skipped.
type Metrics struct {
	CacheTotal    *prometheus.CounterVec
	ParseDuration prometheus.Observer
	Slides        prometheus.Gauge
}

// Options configures the repository.
type Options struct {
	Location    domain.Location
	TTL         time.Duration // <= 0 disables caching
	MaxEntries  int
	LoadTimeout time.Duration // bounds a shared fetch+parse; default 30s
	Clock       ttl.Clock
	Metrics     Metrics
}

// Repository provides the parsed dataset. Concurrent misses for the same
// location share one fetch, which is detached from any single caller's
// cancellation.
type Repository struct {
	source      blobSource
	loc         domain.Location
	cache       *ttl.Cache[domain.Location, []slide.Slide]
	group       singleflight.Group
	generation  atomic.Uint64
	loadTimeout time.Duration
	metrics     Metrics
	logger      *zap.Logger
}

// New creates a dataset repository.
func New(source blobSource, opts Options, logger *zap.Logger) *Repository {
	loc := opts.Location
	if loc.Bucket == "" {
		loc.Bucket = domain.DefaultBucket
	}
	if loc.Key == "" {
		loc.Key = domain.DefaultDatasetKey
	}

	loadTimeout := opts.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}

	r := &Repository{
		source:      source,
		loc:         loc,
		loadTimeout: loadTimeout,
		metrics:     opts.Metrics,
		logger:      logger,
	}
	if opts.TTL > 0 {
		r.cache = ttl.New[domain.Location, []slide.Slide](opts.TTL, opts.MaxEntries, opts.Clock)
	}
	return r
}

// Location returns the bucket and key the repository reads.
func (r *Repository) Location() domain.Location {
	return r.loc
}

// Load returns every slide in the dataset. Parse failures are never cached.
// A caller whose ctx ends stops waiting; the shared fetch keeps running for
// the others, bounded by the load timeout. Callers must not mutate the
// returned slice.
func (r *Repository) Load(ctx context.Context) ([]slide.Slide, error) {
	if r.cache != nil {
		if slides, ok := r.cache.Get(r.loc); ok {
			r.incCache("hit")
			return slides, nil
		}
		r.incCache("miss")
	}

	ch := r.group.DoChan(r.loc.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		return r.fetchAndParse(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load dataset %s: %w", r.loc, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // fetchAndParse wraps
		}
		if res.Shared {
			r.logger.Debug("Shared in-flight dataset load", zap.Stringer("location", r.loc))
		}
		return res.Val.([]slide.Slide), nil //nolint:forcetypeassert // only fetchAndParse stores here
	}
}

// Invalidate drops the cached dataset so the next Load re-fetches. A load
// already in flight still answers its callers but does not repopulate the cache.
func (r *Repository) Invalidate() {
	r.generation.Add(1)
	if r.cache != nil {
		r.cache.Delete(r.loc)
	}
	r.group.Forget(r.loc.String())
}

func (r *Repository) fetchAndParse(ctx context.Context) ([]slide.Slide, error) {
	gen := r.generation.Load()

	data, err := r.source.Fetch(ctx, r.loc)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", r.loc, err)
	}

	start := time.Now()
	slides, err := slide.ParseDataset(data)
	if r.metrics.ParseDuration != nil {
		r.metrics.ParseDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		r.logger.Error("Dataset is malformed",
			zap.Stringer("location", r.loc),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		r.dropSourceCopy(ctx)
		return nil, fmt.Errorf("load dataset %s: %w", r.loc, err)
	}

	if r.metrics.Slides != nil {
		r.metrics.Slides.Set(float64(len(slides)))
	}
	if r.cache != nil && r.generation.Load() == gen {
		r.cache.Put(r.loc, slides)
	}
	return slides, nil
}

// dropSourceCopy evicts a blob that failed to parse from sources that cache
// it, so a fixed upload is picked up on the next load.
func (r *Repository) dropSourceCopy(ctx context.Context) {
	inv, ok := r.source.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, r.loc); err != nil {
		r.logger.Warn("Failed to evict malformed dataset from source cache",
			zap.Stringer("location", r.loc),
			zap.Error(err),
		)
	}
}

func (r *Repository) incCache(result string) {
	if r.metrics.CacheTotal != nil {
		r.metrics.CacheTotal.WithLabelValues(result).Inc()
	}
}
