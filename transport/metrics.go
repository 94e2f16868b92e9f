package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_transport_reconnects_total",
		Help: "Successful redials after an unexpected link drop.",
	})
	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_transport_dropped_total",
		Help: "Frames dropped at the transport boundary.",
	}, []string{"reason"})
)
