// Package metrics exposes Prometheus instrumentation for the memory service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the memory store. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ReadDegradedTotal *prometheus.CounterVec

	// Secrets pipeline
	SecretRefsTotal prometheus.Counter

	// Time-series ingestion and projection
	RateLimitedTotal *prometheus.CounterVec
	SkippedRowsTotal prometheus.Counter
	TraversalVisited prometheus.Histogram
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memgraph",
				Name:      "operations_total",
				Help:      "Total number of memory operations by outcome",
			},
			[]string{"op", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "memgraph",
				Name:      "operation_duration_seconds",
				Help:      "Duration of memory operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		ReadDegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memgraph",
				Name:      "read_degraded_total",
				Help:      "Total number of read failures swallowed into empty results",
			},
			[]string{"op"},
		),
		SecretRefsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "memgraph",
				Name:      "secret_refs_total",
				Help:      "Total number of secret references created on write",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memgraph",
				Name:      "rate_limited_total",
				Help:      "Total number of time-series writes rejected by the ingestion limiter",
			},
			[]string{"op"},
		),
		SkippedRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "memgraph",
				Name:      "timeseries_skipped_rows_total",
				Help:      "Total number of time-series rows skipped because they could not be parsed",
			},
		),
		TraversalVisited: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "memgraph",
				Name:      "traversal_visited_nodes",
				Help:      "Number of nodes reached by breadth-first recall",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.ReadDegradedTotal,
		m.SecretRefsTotal,
		m.RateLimitedTotal,
		m.SkippedRowsTotal,
		m.TraversalVisited,
	)

	return m
}

// ObserveOp records one operation outcome and its duration.
func (m *Metrics) ObserveOp(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ReadDegraded counts a read failure that was reported as an empty result.
func (m *Metrics) ReadDegraded(op string) {
	if m == nil {
		return
	}
	m.ReadDegradedTotal.WithLabelValues(op).Inc()
}

// AddSecretRefs counts references created by a write.
func (m *Metrics) AddSecretRefs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SecretRefsTotal.Add(float64(n))
}

// RateLimited counts a rejected time-series write.
func (m *Metrics) RateLimited(op string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(op).Inc()
}

// SkippedRows counts unparseable time-series rows.
func (m *Metrics) SkippedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedRowsTotal.Add(float64(n))
}

// ObserveTraversal records how many nodes a traversal reached.
func (m *Metrics) ObserveTraversal(visited int) {
	if m == nil {
		return
	}
	m.TraversalVisited.Observe(float64(visited))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes the current values in the Prometheus text format,
// for collection by a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
