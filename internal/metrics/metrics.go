// Package metrics exposes Prometheus instrumentation for the relay server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks currently registered connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomrelay_connections_active",
			Help: "Currently connected clients",
		},
	)

	// ConnectionsTotal counts connections accepted since start.
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomrelay_connections_total",
			Help: "Total client connections accepted",
		},
	)

	// RoomsActive tracks live rooms.
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomrelay_rooms_active",
			Help: "Currently live rooms",
		},
	)

	// EventsTotal counts inbound events accepted by the router.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomrelay_events_total",
			Help: "Inbound events accepted by the router",
		},
		[]string{"event"},
	)

	// EventErrorsTotal counts rejected inbound events by error code.
	EventErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomrelay_event_errors_total",
			Help: "Inbound events rejected by the router",
		},
		[]string{"code"},
	)

	// DeliveriesTotal counts outbound events handed to the transport.
	DeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomrelay_deliveries_total",
			Help: "Outbound events handed to the transport",
		},
	)

	// RateLimitedTotal counts inbound frames discarded by per-connection
	// rate limiting.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomrelay_rate_limited_total",
			Help: "Inbound frames discarded by per-connection rate limiting",
		},
	)

	// LoginsTotal counts identities issued via the HTTP login endpoint.
	LoginsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomrelay_logins_total",
			Help: "Identities issued by the login endpoint",
		},
	)
)
