package metrics

import "github.com/prometheus/client_golang/prometheus"

// Storage and dataset Prometheus metrics.
var (
	StorageFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidedex",
			Name:      "storage_fetch_total",
			Help:      "Total number of object store fetches",
		},
		[]string{"driver", "status"},
	)

	StorageFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slidedex",
			Name:      "storage_fetch_duration_seconds",
			Help:      "Object store fetch duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"driver"},
	)

	StorageFetchBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidedex",
			Name:      "storage_fetch_bytes_total",
			Help:      "Total bytes read from the object store",
		},
		[]string{"driver"},
	)

	DatasetCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidedex",
			Name:      "dataset_cache_total",
			Help:      "Parsed dataset cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	DatasetParseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "slidedex",
			Name:      "dataset_parse_duration_seconds",
			Help:      "Dataset JSON parse duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	DatasetSlides = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slidedex",
			Name:      "dataset_slides",
			Help:      "Number of slides in the last parsed dataset",
		},
	)

	BlobCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidedex",
			Name:      "blob_cache_total",
			Help:      "Shared blob cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var storageMetricsRegistered bool

// RegisterStorageMetrics registers storage and dataset metrics. Must be called once from main.
func RegisterStorageMetrics() {
	if storageMetricsRegistered {
		return
	}
	prometheus.MustRegister(StorageFetchTotal)
	prometheus.MustRegister(StorageFetchDuration)
	prometheus.MustRegister(StorageFetchBytes)
	prometheus.MustRegister(DatasetCacheTotal)
	prometheus.MustRegister(DatasetParseDuration)
	prometheus.MustRegister(DatasetSlides)
	prometheus.MustRegister(BlobCacheTotal)
	storageMetricsRegistered = true
}
