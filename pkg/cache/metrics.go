package cache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics holds the Prometheus collectors of a GraphCache.
type cacheMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	builds        prometheus.Counter
	buildFailures prometheus.Counter
	staleBuilds   prometheus.Counter
	invalidations prometheus.Counter
	buildSeconds  prometheus.Histogram
	entries       prometheus.Gauge
}

func newCacheMetrics(name string) *cacheMetrics {
	labels := prometheus.Labels{"cache": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "entitygraph",
			Subsystem:   "cache",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}

	return &cacheMetrics{
		hits:          counter("hits_total", "Total number of graph cache hits"),
		misses:        counter("misses_total", "Total number of graph cache misses"),
		builds:        counter("builds_total", "Total number of graph builds started by the cache"),
		buildFailures: counter("build_failures_total", "Total number of failed graph builds"),
		staleBuilds:   counter("stale_builds_total", "Total number of builds discarded because of an invalidation during the build"),
		invalidations: counter("invalidations_total", "Total number of project invalidations"),
		buildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "entitygraph",
			Subsystem:   "cache",
			Name:        "build_duration_seconds",
			ConstLabels: labels,
			Help:        "Duration of graph builds",
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "entitygraph",
			Subsystem:   "cache",
			Name:        "entries",
			ConstLabels: labels,
			Help:        "Current number of cached project graphs",
		}),
	}
}

func (m *cacheMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.hits,
		m.misses,
		m.builds,
		m.buildFailures,
		m.staleBuilds,
		m.invalidations,
		m.buildSeconds,
		m.entries,
	}
}

func (m *cacheMetrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}
	return nil
}
