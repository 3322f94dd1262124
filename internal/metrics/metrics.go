// Package metrics provides Prometheus metrics for the asset pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the asset pipeline.
type Metrics struct {
	// Asset metrics
	AssetsProcessed prometheus.Counter
	AssetsFailed    *prometheus.CounterVec
	AssetsSkipped   prometheus.Counter

	// Stage metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Optimization metrics
	CompressionRatio  prometheus.Histogram
	RotationApplied   prometheus.Histogram
	TextureQuality    prometheus.Histogram
	AssetSizeBytes    prometheus.Histogram

	// Pipeline metrics
	WorkerQueueDepth prometheus.Gauge
	InFlightAssets   prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meshforge"
	}

	m := &Metrics{
		AssetsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_processed_total",
				Help:      "Total number of assets that completed all requested stages",
			},
		),
		AssetsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_failed_total",
				Help:      "Total number of assets that failed, by stage",
			},
			[]string{"stage"},
		),
		AssetsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_skipped_total",
				Help:      "Total number of assets skipped (already completed per checkpoint)",
			},
		),
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of a pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"stage"},
		),
		StageFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of stage invocations that failed, by reason",
			},
			[]string{"stage", "reason"},
		),
		CompressionRatio: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compression_ratio",
				Help:      "Optimized asset size as a fraction of source size",
				Buckets:   prometheus.LinearBuckets(0.05, 0.05, 20),
			},
		),
		RotationApplied: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rotation_applied_degrees",
				Help:      "Absolute yaw correction applied by pose normalization",
				Buckets:   prometheus.LinearBuckets(0, 5, 10),
			},
		),
		TextureQuality: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "texture_quality",
				Help:      "JPEG quality selected by the perceptual compression search",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		AssetSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "asset_size_bytes",
				Help:      "Size of the optimized asset artifact in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
		),
		WorkerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current number of assets in the worker queue",
			},
		),
		InFlightAssets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_assets",
				Help:      "Number of assets currently being processed",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil if Init was not called.
func Get() *Metrics {
	return defaultMetrics
}

// Serve starts the metrics HTTP server in a goroutine.
func Serve(cfg Config) {
	if !cfg.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		// Server errors are not fatal to the pipeline.
		_ = http.ListenAndServe(cfg.Address, mux)
	}()
}
