package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPRequestSize       prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Websocket connection metrics
	WSActiveConnections prometheus.Gauge
	WSConnectionsTotal  prometheus.CounterVec
	WSOnlineUsers       prometheus.Gauge
	WSMessagesReceived  prometheus.CounterVec
	WSMessagesSent      prometheus.CounterVec
	WSDeliveriesDropped prometheus.CounterVec

	// Realtime feature metrics
	PresenceBroadcastsTotal  prometheus.Counter
	TypingNotificationsTotal prometheus.CounterVec
	RoomJoinsTotal           prometheus.CounterVec
	ActiveRooms              prometheus.Gauge
	RelayEventsTotal         prometheus.CounterVec
	BridgeEventsTotal        prometheus.CounterVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Store metrics
	DatabaseQueryDuration  prometheus.HistogramVec
	DatabaseQueriesTotal   prometheus.CounterVec
	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Websocket connection metrics
			WSActiveConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ws_active_connections",
					Help: "Number of open websocket connections, including superseded ones",
				},
			),
			WSConnectionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ws_connections_total",
					Help: "Websocket connection attempts by admission result",
				},
				[]string{"result"},
			),
			WSOnlineUsers: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ws_online_users",
					Help: "Number of users with a bound connection",
				},
			),
			WSMessagesReceived: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ws_messages_received_total",
					Help: "Client signals received by type",
				},
				[]string{"type"},
			),
			WSMessagesSent: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ws_messages_sent_total",
					Help: "Server events queued for delivery by type",
				},
				[]string{"type"},
			),
			WSDeliveriesDropped: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ws_deliveries_dropped_total",
					Help: "Events that could not be delivered by reason",
				},
				[]string{"reason"},
			),

			// Realtime feature metrics
			PresenceBroadcastsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "presence_broadcasts_total",
					Help: "Online-user list broadcasts sent after bind or unbind",
				},
			),
			TypingNotificationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "typing_notifications_total",
					Help: "Typing and stop-typing notifications fanned out",
				},
				[]string{"event"},
			),
			RoomJoinsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "room_joins_total",
					Help: "Room join requests by result",
				},
				[]string{"result"},
			),
			ActiveRooms: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_rooms",
					Help: "Rooms with at least one member",
				},
			),
			RelayEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_events_total",
					Help: "Domain events relayed by event name and addressing scope",
				},
				[]string{"event", "scope"},
			),
			BridgeEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_events_total",
					Help: "Events received from cross-process transports",
				},
				[]string{"source", "status"},
			),

			// Rate limiting metrics
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			// Store metrics
			DatabaseQueryDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "database_query_duration_seconds",
					Help:    "Database query latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"query_type", "table"},
			),
			DatabaseQueriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "database_queries_total",
					Help: "Total number of database queries",
				},
				[]string{"query_type", "table", "status"},
			),
			RedisOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "redis_operation_duration_seconds",
					Help:    "Redis operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation", "key_pattern"},
			),
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis operations",
				},
				[]string{"operation", "status"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
