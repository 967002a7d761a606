package rpc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics follow a package-level-collectors-registered-once-at-init
// convention, served through promhttp.Handler().
var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphdb_rpc_requests_total",
			Help: "Total number of RPC method calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphdb_rpc_request_duration_seconds",
			Help:    "RPC method call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BatchOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphdb_rpc_batch_operations_total",
			Help: "Total number of operations processed inside batch* calls, by outcome.",
		},
		[]string{"outcome"},
	)

	WebSocketConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphdb_rpc_websocket_connections_active",
			Help: "Number of currently open WebSocket connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(BatchOperationsTotal)
	prometheus.MustRegister(WebSocketConnectionsActive)
}

// MetricsHandler exposes the registered collectors for a /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
