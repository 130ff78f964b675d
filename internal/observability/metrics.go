package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Gateway HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of gateway HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Remote API client metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Latency of calls to the storefront REST API in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_token_refresh_total",
			Help: "Access token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Store metrics
	StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_mutations_total",
			Help: "Cart and wishlist mutations by store, operation and outcome",
		},
		[]string{"store", "operation", "outcome"},
	)

	WishlistRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_wishlist_recoveries_total",
			Help: "Wishlist optimistic updates undone after a failed API call",
		},
		[]string{"operation", "strategy"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active event stream connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of events sent via WebSocket",
		},
		[]string{"type"},
	)

	// Storage metrics
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Durable state storage latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"backend", "operation"},
	)
)
