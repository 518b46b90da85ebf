// Package metrics groups the Prometheus instruments for the memory engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the engine reports.
type Metrics struct {
	TurnsStored    prometheus.Counter
	ChunkDecisions *prometheus.CounterVec
	SearchRequests *prometheus.CounterVec
	CacheEvents    *prometheus.CounterVec
	SearchLatency  prometheus.Histogram
}

// New registers all instruments under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		TurnsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_stored_total",
			Help:      "Conversation turns accepted by the write path.",
		}),
		ChunkDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_decisions_total",
			Help:      "Deduplication decisions by action.",
		}, []string{"action"}),
		SearchRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by context and strategy.",
		}, []string{"context", "strategy"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache hits and misses by cache name.",
		}, []string{"cache", "event"}),
		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_ms",
			Help:      "End-to-end search latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1500, 3000},
		}),
	}
}

// ObserveSearchLatency records one search duration.
func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchLatency.Observe(float64(d.Milliseconds()))
}

// Handler exposes the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
