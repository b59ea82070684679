// Package telemetry registers the per-stage and cache-hit/miss Prometheus
// counters described in SPEC_FULL.md §6. Grounded directly on
// internal/interfaces/http/metrics.go's MetricsRegistry: the same
// CounterVec/GaugeVec construction and prometheus.MustRegister call,
// relabelled from the teacher's scan/regime metrics to this pipeline's
// six stages.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this module exposes.
type Registry struct {
	StageRecords *prometheus.CounterVec
	StageDropped *prometheus.CounterVec
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
}

// NewRegistry builds and registers a fresh Registry against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		StageRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityagg_stage_records_total",
				Help: "Total records forwarded by each pipeline stage",
			},
			[]string{"stage"},
		),
		StageDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityagg_stage_dropped_total",
				Help: "Total records dropped by each pipeline stage",
			},
			[]string{"stage"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityagg_cache_hits_total",
				Help: "Total cache hits by cache name",
			},
			[]string{"cache_name"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityagg_cache_misses_total",
				Help: "Total cache misses by cache name",
			},
			[]string{"cache_name"},
		),
	}

	reg.MustRegister(r.StageRecords, r.StageDropped, r.CacheHits, r.CacheMisses)
	return r
}

// RecordForwarded increments the forwarded counter for stage.
func (r *Registry) RecordForwarded(stage string) {
	r.StageRecords.WithLabelValues(stage).Inc()
}

// RecordDropped increments the dropped counter for stage.
func (r *Registry) RecordDropped(stage string) {
	r.StageDropped.WithLabelValues(stage).Inc()
}

// RecordCacheHit increments the hit counter for cacheName.
func (r *Registry) RecordCacheHit(cacheName string) {
	r.CacheHits.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss increments the miss counter for cacheName.
func (r *Registry) RecordCacheMiss(cacheName string) {
	r.CacheMisses.WithLabelValues(cacheName).Inc()
}

// Handler exposes reg over HTTP via promhttp. The equityagg commands do
// not mount it: Config.MetricsAddr (METRICS_ADDR) is loaded but not used.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
