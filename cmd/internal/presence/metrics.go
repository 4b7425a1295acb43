package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics. Registered once on the default registerer; the /metrics
// endpoint is mounted by the app.
var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "connections",
		Help:      "Number of live websocket connections in the registry.",
	})

	metricHandshakeRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "handshake_rejects_total",
		Help:      "Websocket handshakes rejected before upgrade, by reason.",
	}, []string{"reason"})

	metricMessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "messages_persisted_total",
		Help:      "Private messages successfully persisted.",
	})

	metricMessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "messages_delivered_total",
		Help:      "Persisted private messages delivered to a live receiver.",
	})

	metricMessagesOffline = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "messages_offline_total",
		Help:      "Persisted private messages whose receiver had no live connection.",
	})

	metricForcedDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pipit",
		Subsystem: "presence",
		Name:      "forced_disconnects_total",
		Help:      "Connections closed because per-event re-authorization failed.",
	})
)
