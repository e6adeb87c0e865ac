// Package metrics declares the Prometheus collectors for the proxy.
//
// Naming convention: namespace_subsystem_name
//   - namespace: draft_proxy (application-level grouping)
//   - subsystem: room, upstream, downstream, rate_limit, circuit_breaker, redis
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRooms tracks the current number of rooms in the Registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "draft_proxy",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomClients tracks the number of downstream sessions per room.
	RoomClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "draft_proxy",
		Subsystem: "room",
		Name:      "clients_count",
		Help:      "Number of downstream client sessions in each room",
	}, []string{"league_id"})

	// DownstreamConnections tracks the current number of accepted downstream
	// WebSocket connections across all rooms.
	DownstreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "draft_proxy",
		Subsystem: "downstream",
		Name:      "connections_active",
		Help:      "Current number of active downstream WebSocket connections",
	})

	// UpstreamDials tracks upstream dial attempts by outcome.
	UpstreamDials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "upstream",
		Name:      "dial_attempts_total",
		Help:      "Total upstream dial attempts",
	}, []string{"status"})

	// UpstreamForcedReinits tracks how often a Room force-reinitializes its
	// Upstream Link because a new client joined an already-connected room.
	UpstreamForcedReinits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "upstream",
		Name:      "forced_reinit_total",
		Help:      "Total forced upstream re-initializations triggered by new client arrivals",
	})

	// RoomRetirements tracks rooms retired after the grace period elapsed.
	RoomRetirements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "room",
		Name:      "retirements_total",
		Help:      "Total rooms retired after the grace period elapsed with no clients",
	})

	// CircuitBreakerState tracks the gobreaker state guarding upstream dials.
	// 0: Closed (healthy), 1: Open (failing), 2: Half-Open (recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "draft_proxy",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the upstream dial circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"league_id"})

	// CircuitBreakerRejections tracks dials rejected while the breaker is open.
	CircuitBreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "circuit_breaker",
		Name:      "rejections_total",
		Help:      "Total upstream dials rejected because the circuit breaker was open",
	}, []string{"league_id"})

	// RateLimitExceeded tracks WebSocket upgrade attempts rejected by the limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks Redis operations performed by the rate limiter store.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "draft_proxy",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "draft_proxy",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// IncDownstreamConnection increments the active downstream connection gauge.
func IncDownstreamConnection() {
	DownstreamConnections.Inc()
}

// DecDownstreamConnection decrements the active downstream connection gauge.
func DecDownstreamConnection() {
	DownstreamConnections.Dec()
}
