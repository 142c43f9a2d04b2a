package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dflow_sessions_active",
		Help: "Number of open WebSocket sessions",
	})

	// sessionsTotal counts sessions by path and result of the handshake.
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflow_sessions_total",
		Help: "Total WebSocket session requests by path and result",
	}, []string{"path", "result"})

	// sessionMessages counts messages by direction ("in" or "out") and kind ("envelope" or "error").
	sessionMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflow_session_messages_total",
		Help: "Total WebSocket messages by direction and kind",
	}, []string{"direction", "kind"})
)
