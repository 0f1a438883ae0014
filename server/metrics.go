package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/realDragonium/Slumber/core"
)

var (
	serverState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "slumber",
		Name:      "server_state",
		Help:      "1 for the state the server is currently in.",
	}, []string{"state"})
	lifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slumber",
		Name:      "lifecycle_events_total",
		Help:      "The number of lifecycle events per kind.",
	}, []string{"event"})
	startDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "slumber",
		Name:      "server_start_duration_seconds",
		Help:      "Time between spawning the server and it becoming ready.",
		Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
	})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slumber",
		Name:      "players_connected",
		Help:      "The number of connections forwarded to the server.",
	})
)

func recordState(state core.ServerState) {
	for _, s := range []core.ServerState{core.Sleeping, core.Starting, core.Running, core.Stopping} {
		value := 0.0
		if s == state {
			value = 1
		}
		serverState.WithLabelValues(s.String()).Set(value)
	}
}
