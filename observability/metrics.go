package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 网关核心指标。gauge 由 lifecycle 每处理完一个事件后刷新。
var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epresence_connections",
		Help: "Currently open transport connections (authorized or not).",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epresence_online_users",
		Help: "Users with at least one open connection.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epresence_active_rooms",
		Help: "Rooms with at least one member.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epresence_events_total",
		Help: "Inbound lifecycle events processed, by kind.",
	}, []string{"kind"})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epresence_broadcasts_total",
		Help: "Outbound frames handed to the transport.",
	})

	StaleDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epresence_stale_deliveries_total",
		Help: "Deliveries skipped because the connection was already gone.",
	})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epresence_dropped_events_total",
		Help: "Inbound events dropped because the queue was full.",
	})

	RelayedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epresence_relayed_messages_total",
		Help: "Message frames relayed to the persistence topic.",
	})
)
