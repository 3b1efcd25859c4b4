package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "libsync_server_build_info",
			Help:        "Build information for the libsync server",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libsync_messages_total",
			Help: "Inbound client messages by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libsync_dispatch_duration_seconds",
			Help:    "Time from message receipt to reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libsync_connections",
			Help: "Connected clients by status",
		},
		[]string{"status"},
	)

	librariesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "libsync_libraries_open",
			Help: "Number of libraries with at least one connection",
		},
	)

	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libsync_broadcast_frames_total",
			Help: "Event frames addressed to peers, by result",
		},
		[]string{"result"},
	)

	hookVetoes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libsync_hook_vetoes_total",
			Help: "Operations vetoed by a gating hook",
		},
		[]string{"event"},
	)

	hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libsync_hook_failures_total",
			Help: "Hooks that returned an error or panicked",
		},
		[]string{"event", "kind"},
	)
)

// Register registers the server collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, messagesTotal, dispatchDuration, connections, librariesOpen, broadcastsTotal, hookVetoes, hookFailures)
}

// SetServerBuildInfo sets the build info metric for the server.
func SetServerBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordMessage counts a dispatched message. outcome is "ok" or an error kind.
func RecordMessage(action, outcome string, dur time.Duration) {
	messagesTotal.WithLabelValues(action, outcome).Inc()
	dispatchDuration.WithLabelValues(action).Observe(dur.Seconds())
}

// ConnectionStatusChanged moves one connection between status gauges. An empty
// from means the connection is new; closed connections are not tracked.
func ConnectionStatusChanged(from, to spi.ConnStatus) {
	if from != "" && from != spi.StatusClosed {
		connections.WithLabelValues(string(from)).Dec()
	}
	if to != "" && to != spi.StatusClosed {
		connections.WithLabelValues(string(to)).Inc()
	}
}

// LibraryOpened increments the open library gauge.
func LibraryOpened() { librariesOpen.Inc() }

// LibraryClosed decrements the open library gauge.
func LibraryClosed() { librariesOpen.Dec() }

// RecordBroadcast counts a frame queued ("sent"), dropped on a full queue
// ("dropped") or addressed to a closed connection ("stale").
func RecordBroadcast(result string) { broadcastsTotal.WithLabelValues(result).Inc() }

// RecordHookVeto counts a veto on event.
func RecordHookVeto(event string) { hookVetoes.WithLabelValues(event).Inc() }

// RecordHookFailure counts a failing hook.
func RecordHookFailure(event string, kind spi.HookKind) {
	hookFailures.WithLabelValues(event, kind.String()).Inc()
}
