// Package metrics exposes the relay's counters to the observability
// collaborator via Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts handshake outcomes at the session gateway.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_connections_total",
			Help: "Total websocket connection attempts by outcome",
		},
		[]string{"result"}, // "accepted" or "rejected"
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_messages_persisted_total",
			Help: "Total messages appended to the store",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_messages_rejected_total",
			Help: "Total inbound messages rejected before fan-out",
		},
		[]string{"reason"}, // "validation", "duplicate", "store"
	)

	DeliveryDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_delivery_drops_total",
			Help: "Total per-recipient deliveries dropped on a full buffer",
		},
	)

	TypingRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_typing_relayed_total",
			Help: "Total typing events relayed",
		},
	)

	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wirechat_sessions_live",
			Help: "Currently registered live sessions",
		},
	)
)
