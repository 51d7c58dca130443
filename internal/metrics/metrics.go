package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	// ConnectionsActive tracks currently open WebSocket connections on this instance
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Currently open WebSocket connections on this instance",
		},
	)

	// FramesTotal tracks inbound frames by type and outcome
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_frames_total",
			Help: "Inbound WebSocket frames by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// AuthFailuresTotal tracks rejected authentication attempts
	AuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_auth_failures_total",
			Help: "Rejected WebSocket authentication attempts",
		},
	)

	// ConnectionsRejectedTotal tracks upgrades refused by the connection limits
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_connections_rejected_total",
			Help: "WebSocket upgrades refused by the connection limits, by reason",
		},
		[]string{"reason"},
	)
)

// Presence metrics
var (
	// PresenceBroadcastsTotal tracks published presence transitions by status
	PresenceBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcasts_total",
			Help: "Published presence transitions by status",
		},
		[]string{"status"},
	)

	// PresenceSuppressedTotal tracks suppressed recomputes by reason (dedup/privacy)
	PresenceSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_suppressed_total",
			Help: "Presence recomputes that produced no broadcast, by reason",
		},
		[]string{"reason"},
	)

	// CounterErrorsTotal tracks failed atomic counter operations
	CounterErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_counter_errors_total",
			Help: "Failed atomic presence counter operations",
		},
	)
)

// Fanout metrics
var (
	// BusPublishFailuresTotal tracks publish attempts swallowed due to bus errors
	BusPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_bus_publish_failures_total",
			Help: "Publish attempts swallowed due to bus errors",
		},
	)

	// BusSubscriptionsActive tracks open per-chat bus subscriptions on this instance
	BusSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_bus_subscriptions_active",
			Help: "Open per-chat bus subscriptions on this instance",
		},
	)

	// DroppedDeliveriesTotal tracks local deliveries dropped due to full client buffers
	DroppedDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_dropped_deliveries_total",
			Help: "Local deliveries dropped because a client send buffer was full",
		},
	)
)
