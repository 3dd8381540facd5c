// Package metrics exposes Prometheus instrumentation for the land sync
// gateway, registered on a private registry in the same shape as the
// server this engine was adapted from.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every gauge/counter/histogram the gateway records.
type Metrics struct {
	activeLands       prometheus.Gauge
	activeSessions    prometheus.Gauge
	activePlayers     *prometheus.GaugeVec
	wsConnections     *prometheus.CounterVec
	wsMessages        *prometheus.CounterVec
	droppedEvents     *prometheus.CounterVec
	syncCycleDuration *prometheus.HistogramVec
	syncCyclesTotal   *prometheus.CounterVec
	codecOperations   *prometheus.CounterVec
	joinResults       *prometheus.CounterVec
	serverStartTime   prometheus.Gauge
	healthChecks      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all gateway metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		activeLands: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "landsync_lands_active",
			Help: "Number of currently active land instances",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "landsync_sessions_active",
			Help: "Number of currently connected WebSocket sessions",
		}),
		activePlayers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "landsync_players_active",
			Help: "Number of joined players, by land",
		}, []string{"land"}),
		wsConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_websocket_connections_total",
			Help: "Total WebSocket connection lifecycle events by type",
		}, []string{"type"}), // accepted, closed
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_websocket_messages_total",
			Help: "Total WebSocket messages by direction and kind",
		}, []string{"direction", "kind"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_dropped_events_total",
			Help: "Pending events dropped at flush time by reason",
		}, []string{"reason"}), // stale_stamp, unknown_target, encode_error
		syncCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landsync_sync_cycle_duration_seconds",
			Help:    "Duration of a room sync cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"land_type"}),
		syncCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_sync_cycles_total",
			Help: "Total sync cycles by outcome",
		}, []string{"land_type", "outcome"}), // completed, skipped_overlap
		codecOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_codec_operations_total",
			Help: "Codec encode/decode operations by codec and result",
		}, []string{"codec", "operation", "result"}),
		joinResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_join_results_total",
			Help: "Join attempts by outcome code",
		}, []string{"code"}),
		serverStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "landsync_start_time_seconds",
			Help: "Unix timestamp when the gateway started",
		}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landsync_health_checks_total",
			Help: "Health checks by name and status",
		}, []string{"check_name", "status"}),
		registry: registry,
	}

	registry.MustRegister(
		m.activeLands, m.activeSessions, m.activePlayers,
		m.wsConnections, m.wsMessages, m.droppedEvents,
		m.syncCycleDuration, m.syncCyclesTotal, m.codecOperations,
		m.joinResults, m.serverStartTime, m.healthChecks,
	)
	m.serverStartTime.SetToCurrentTime()

	return m
}

// Handler returns an HTTP handler exposing the registry in Prometheus text
// format. The caller mounts it on whatever admin HTTP server it owns;
// admin HTTP endpoints themselves are out of scope for this gateway.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetActiveLands(n int)    { m.activeLands.Set(float64(n)) }
func (m *Metrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }
func (m *Metrics) SetActivePlayers(land string, n int) {
	m.activePlayers.WithLabelValues(land).Set(float64(n))
}

func (m *Metrics) RecordWSConnection(kind string) { m.wsConnections.WithLabelValues(kind).Inc() }
func (m *Metrics) RecordWSMessage(direction, kind string) {
	m.wsMessages.WithLabelValues(direction, kind).Inc()
}
func (m *Metrics) RecordDroppedEvent(reason string) { m.droppedEvents.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveSyncCycle(landType string, d time.Duration) {
	m.syncCycleDuration.WithLabelValues(landType).Observe(d.Seconds())
}
func (m *Metrics) RecordSyncOutcome(landType, outcome string) {
	m.syncCyclesTotal.WithLabelValues(landType, outcome).Inc()
}

func (m *Metrics) RecordCodecOp(codec, operation, result string) {
	m.codecOperations.WithLabelValues(codec, operation, result).Inc()
}
func (m *Metrics) RecordJoinResult(code string) { m.joinResults.WithLabelValues(code).Inc() }

func (m *Metrics) RecordHealthCheck(name string, healthy bool) {
	status := "success"
	if !healthy {
		status = "failure"
	}
	m.healthChecks.WithLabelValues(name, status).Inc()
}
