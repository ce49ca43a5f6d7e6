// Package storage defines the object-store accessor contract and the
// decorators shared by every driver. Drivers know nothing about slides: they
// move bytes for a bucket/key pair.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/pathology-bites/slidedex/internal/domain"
)

// BlobSource fetches a single object. Every failure, including an empty
// body, wraps domain.ErrStorageUnavailable. Implementations do not retry.
type BlobSource interface {
	Fetch(ctx context.Context, loc domain.Location) ([]byte, error)
}

// Checker reports whether a source is configured well enough to serve fetches.
type Checker interface {
	Check(ctx context.Context) error
}

// Unavailable wraps cause with domain.ErrStorageUnavailable.
func Unavailable(loc domain.Location, cause error) error {
	return fmt.Errorf("%w: fetch %s: %w", domain.ErrStorageUnavailable, loc, cause)
}

// Limited bounds the rate of upstream fetches.
type Limited struct {
	inner   BlobSource
	limiter *rate.Limiter
}

// NewLimited wraps inner with a token bucket of perSecond fetches and the
// given burst. perSecond <= 0 returns inner unchanged.
func NewLimited(inner BlobSource, perSecond float64, burst int) BlobSource {
	if perSecond <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Fetch waits for a token, then delegates.
func (l *Limited) Fetch(ctx context.Context, loc domain.Location) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, Unavailable(loc, fmt.Errorf("rate limiter: %w", err))
	}
	return l.inner.Fetch(ctx, loc) //nolint:wrapcheck // decorator
}

// Instrumented records fetch counts, latency, and bytes per driver.
type Instrumented struct {
	inner    BlobSource
	driver   string
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewInstrumented wraps inner. Collectors may be nil.
func NewInstrumented(
	inner BlobSource,
	driver string,
	total *prometheus.CounterVec,
	duration *prometheus.HistogramVec,
	bytes *prometheus.CounterVec,
) *Instrumented {
	return &Instrumented{inner: inner, driver: driver, total: total, duration: duration, bytes: bytes}
}

// Fetch delegates and records the outcome.
func (i *Instrumented) Fetch(ctx context.Context, loc domain.Location) ([]byte, error) {
	start := time.Now()
	data, err := i.inner.Fetch(ctx, loc)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if i.total != nil {
		i.total.WithLabelValues(i.driver, status).Inc()
	}
	if i.duration != nil {
		i.duration.WithLabelValues(i.driver).Observe(time.Since(start).Seconds())
	}
	if i.bytes != nil && err == nil {
		i.bytes.WithLabelValues(i.driver).Add(float64(len(data)))
	}
	return data, err //nolint:wrapcheck // decorator
}
