package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of currently registered WebSocket connections",
		},
	)

	connectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_connections_total",
			Help: "Total number of WebSocket connections accepted",
		},
	)

	messagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_received_total",
			Help: "Total number of inbound chat messages",
		},
	)

	messagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_broadcast_total",
			Help: "Total number of chat messages fanned out",
		},
	)

	fanoutSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_sends_total",
			Help: "Per-connection send attempts during fan-out",
		},
		[]string{"status"}, // "sent" or "dropped"
	)

	presenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_presence_broadcasts_total",
			Help: "Total number of presence list broadcasts",
		},
	)
)
