// Package metrics exposes Prometheus instrumentation for the debate
// server. All Record helpers are nil-safe so components can run without
// metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the server registers
type Metrics struct {
	RoomsOpen     prometheus.Gauge
	MatchesActive prometheus.Gauge

	SocketEvents    *prometheus.CounterVec
	Broadcasts      *prometheus.CounterVec
	Penalties       *prometheus.CounterVec
	JudgeRequests   *prometheus.CounterVec
	MatchesFinished *prometheus.CounterVec

	JudgeLatency prometheus.Histogram
}

// New registers all collectors on the default registry
func New() *Metrics {
	return &Metrics{
		RoomsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "toron_rooms_open",
			Help: "Number of debate rooms currently open",
		}),
		MatchesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "toron_matches_active",
			Help: "Number of debate matches currently running",
		}),
		SocketEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "toron_socket_events_total",
			Help: "Client events received over the socket",
		}, []string{"event"}),
		Broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "toron_broadcasts_total",
			Help: "Events broadcast to room subscribers",
		}, []string{"event"}),
		Penalties: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "toron_penalties_total",
			Help: "Penalties applied to players",
		}, []string{"kind"}),
		JudgeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "toron_judge_requests_total",
			Help: "AI judge evaluations by outcome",
		}, []string{"outcome"}),
		MatchesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "toron_matches_finished_total",
			Help: "Finished matches by result kind",
		}, []string{"result"}),
		JudgeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "toron_judge_latency_seconds",
			Help:    "Latency of full judge evaluations",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

// RecordSocketEvent counts one inbound client event
func (m *Metrics) RecordSocketEvent(event string) {
	if m == nil {
		return
	}
	m.SocketEvents.WithLabelValues(event).Inc()
}

// RecordBroadcast counts one room broadcast
func (m *Metrics) RecordBroadcast(event string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(event).Inc()
}

// RecordPenalty counts a penalty by kind ("round", "total", "referee")
func (m *Metrics) RecordPenalty(kind string) {
	if m == nil {
		return
	}
	m.Penalties.WithLabelValues(kind).Inc()
}

// RecordJudgeRequest counts an evaluation outcome ("ok", "error") with
// its latency
func (m *Metrics) RecordJudgeRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JudgeRequests.WithLabelValues(outcome).Inc()
	m.JudgeLatency.Observe(elapsed.Seconds())
}

// RecordMatchFinished counts a finished match by result kind
// ("verdict", "forfeit", "error")
func (m *Metrics) RecordMatchFinished(result string) {
	if m == nil {
		return
	}
	m.MatchesFinished.WithLabelValues(result).Inc()
}

// SetRoomsOpen sets the open room gauge
func (m *Metrics) SetRoomsOpen(n int) {
	if m == nil {
		return
	}
	m.RoomsOpen.Set(float64(n))
}

// MatchStarted bumps the active match gauge
func (m *Metrics) MatchStarted() {
	if m == nil {
		return
	}
	m.MatchesActive.Inc()
}

// MatchStopped drops the active match gauge
func (m *Metrics) MatchStopped() {
	if m == nil {
		return
	}
	m.MatchesActive.Dec()
}
