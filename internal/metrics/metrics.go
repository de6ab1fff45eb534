package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_sessions_active",
			Help: "Currently attached sessions",
		},
	)

	SessionsAttached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_sessions_attached_total",
			Help: "Total successful session attaches",
		},
	)

	SessionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_sessions_evicted_total",
			Help: "Sessions forcibly disconnected",
		},
		[]string{"reason"}, // "slow_consumer" or "heartbeat"
	)

	// Broadcast metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_events_published_total",
			Help: "Events published to rooms",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_events_dropped_total",
			Help: "Non-critical events dropped by send-queue overflow",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_rooms_active",
			Help: "Rooms currently open",
		},
	)

	BusPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_bus_publish_failures_total",
			Help: "Bus publishes that fell back to local-only fan-out",
		},
	)

	// AI router metrics
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_provider_attempts_total",
			Help: "Provider invocations",
		},
		[]string{"provider", "kind"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_provider_failures_total",
			Help: "Failed provider invocations",
		},
		[]string{"provider", "reason"}, // "timeout" or "error"
	)

	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_circuit_transitions_total",
			Help: "Provider circuit-breaker state transitions",
		},
		[]string{"provider", "state"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ai_tasks_total",
			Help: "AI tasks by terminal state",
		},
		[]string{"kind", "state"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_cache_hits_total",
			Help: "Response cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_cache_misses_total",
			Help: "Response cache misses (including store errors)",
		},
		[]string{"kind"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
