// Package metrics exposes Prometheus collectors for the batchwatch service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	streamClients              *prometheus.GaugeVec
	terminateRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		streamClients = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "batchwatch_stream_clients",
				Help: "Connected live dashboard clients, labeled by transport.",
			},
			[]string{"transport"},
		)

		terminateRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwatch_terminate_requests_total",
				Help: "Termination requests accepted, labeled by origin.",
			},
			[]string{"origin"},
		)
	})
}

// Handler returns an http.Handler exposing the default registry merged with
// any extra gatherers.
func Handler(extra ...prometheus.Gatherer) http.Handler {
	if len(extra) == 0 {
		return promhttp.Handler()
	}
	gatherers := append(prometheus.Gatherers{prometheus.DefaultGatherer}, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// StreamConnected tracks a live client for the duration of its connection.
// Call the returned func when the client disconnects.
func StreamConnected(transport string) func() {
	Init()
	g := streamClients.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// ObserveTerminateRequest counts a termination request from origin.
func ObserveTerminateRequest(origin string) {
	Init()
	terminateRequestsTotal.WithLabelValues(origin).Inc()
}
