package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "huddle_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RelayConnections is the gauge of connections registered with the relay hub.
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_relay_connections",
		Help: "Number of connections registered with the relay hub",
	})

	// RelayRooms is the gauge of rooms with at least one member.
	RelayRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_relay_rooms",
		Help: "Number of relay rooms with at least one member",
	})

	// RelayEventsTotal counts inbound relay events by type.
	RelayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relay_events_total",
		Help: "Total relay events received by type",
	}, []string{"event"})

	// RelayDeliveriesTotal counts frames queued to recipients by event type.
	RelayDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relay_deliveries_total",
		Help: "Total relay frames queued for delivery",
	}, []string{"event"})

	// RelayDroppedTotal counts inbound frames discarded by reason.
	RelayDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relay_dropped_total",
		Help: "Total inbound relay frames dropped",
	}, []string{"reason"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RosterOutcomes counts roster mutations by operation and outcome.
	RosterOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_roster_outcomes_total",
		Help: "Event roster join/leave attempts by outcome",
	}, []string{"operation", "outcome"})

	// PrivateChatResolutions counts getOrCreate results.
	PrivateChatResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_private_chat_resolutions_total",
		Help: "Private chat getOrCreate results (existing, created, denied)",
	}, []string{"result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
