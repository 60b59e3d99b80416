package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsync_log_lines_skipped_total",
		Help: "Malformed log lines skipped while loading",
	}, []string{"log"})
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_ticks_total",
		Help: "Sync loop ticks executed",
	})
	TicksWithoutFix = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_ticks_without_fix_total",
		Help: "Ticks where no fix was in effect, so nothing was broadcast",
	})
	Clients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailsync_ws_clients",
		Help: "Live websocket connections",
	})
	Connections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_ws_connections_total",
		Help: "Websocket connections accepted",
	})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsync_events_dropped_total",
		Help: "Position events dropped before broadcast",
	}, []string{"reason"})
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_broadcasts_total",
		Help: "Position events fanned out to at least one client",
	})
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_send_failures_total",
		Help: "Websocket writes that failed and removed the client",
	})
	ClientQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsync_client_queue_drops_total",
		Help: "Messages skipped for a client whose send queue was full",
	})
	MirrorPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsync_mirror_published_total",
		Help: "Positions published to a mirror",
	}, []string{"mirror"})
	MirrorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsync_mirror_errors_total",
		Help: "Failed mirror publishes",
	}, []string{"mirror"})
	MirrorDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsync_mirror_dropped_total",
		Help: "Positions dropped because a mirror queue was full",
	}, []string{"mirror"})
)

// Register mounts /metrics and /healthz on mux.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
}
