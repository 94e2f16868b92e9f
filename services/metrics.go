package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Open WebSocket connections.",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Relayed events by kind.",
	}, []string{"kind"})

	droppedFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_dropped_frames_total",
		Help: "Inbound or outbound frames the relay dropped, by reason.",
	}, []string{"reason"})
)
