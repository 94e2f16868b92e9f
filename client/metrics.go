package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_reconciler_events_total",
		Help: "Live messages seen by the reconciler, by channel kind and outcome.",
	}, []string{"kind", "outcome"})

	historyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_history_fetch_total",
		Help: "History fetch results: applied, failed, stale.",
	}, []string{"result"})

	droppedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_session_dropped_events_total",
		Help: "Inbound events dropped by the session: stale view or foreign channel.",
	}, []string{"reason"})
)
