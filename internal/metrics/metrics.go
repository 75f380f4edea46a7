package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geurim_ws_connections_total",
		Help: "WebSocket connections accepted since start.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geurim_events_total",
		Help: "Inbound protocol events by type.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geurim_broadcasts_total",
		Help: "Room broadcasts fanned out.",
	})

	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geurim_active_clients",
		Help: "Currently connected clients.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geurim_active_rooms",
		Help: "Rooms with at least one member.",
	})
)

// Handler exposes the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
