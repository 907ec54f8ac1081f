// Package metrics exposes Prometheus counters for protocol operations on a
// dedicated listener, separate from the request-serving port.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the /metrics endpoint and owns the registry the
// process records into.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	commandsTotal  *prometheus.CounterVec
	commandErrors  *prometheus.CounterVec
	commandSeconds *prometheus.HistogramVec
}

// New creates a metrics server listening on addr. The namespace prefixes
// every metric name.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsServer{registry: registry}

	m.commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Protocol commands processed, by operation.",
	}, []string{"op"})
	m.commandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "command_errors_total",
		Help:      "Failed protocol commands, by operation and error kind.",
	}, []string{"op", "kind"})
	m.commandSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Protocol command processing latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	registry.MustRegister(m.commandsTotal, m.commandErrors, m.commandSeconds)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return m, nil
}

// RecordCommand records one processed command and its latency.
func (m *MetricsServer) RecordCommand(op string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(op).Inc()
	m.commandSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordError records one failed command.
func (m *MetricsServer) RecordError(op, kind string) {
	m.commandErrors.WithLabelValues(op, kind).Inc()
}

// ListenAndServe blocks serving the metrics endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
