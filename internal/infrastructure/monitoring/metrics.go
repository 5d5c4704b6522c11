// Package monitoring exposes Prometheus metrics for the session
// manager: send outcomes, expiry recoveries, sweep activity, and
// backend reachability.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeRecovered = "recovered"
	OutcomeExpired   = "expired"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Session removal reason label values.
const (
	ReasonUser    = "user"
	ReasonExpired = "expired"
	ReasonSwept   = "swept"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so tests can pass nil.
type Metrics struct {
	SendsTotal      *prometheus.CounterVec
	SendDuration    prometheus.Histogram
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved *prometheus.CounterVec
	SweepsTotal     prometheus.Counter
	SweepRemovals   prometheus.Counter
	BackendUp       prometheus.Gauge
}

// New creates a metrics collector registered on reg. Pass nil to use
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floatchat_sends_total",
				Help: "Total message sends by outcome",
			},
			[]string{"outcome"},
		),
		SendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "floatchat_send_duration_seconds",
				Help:    "End-to-end message send duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "floatchat_sessions_active",
				Help: "Number of locally known sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "floatchat_sessions_created_total",
				Help: "Total sessions created",
			},
		),
		SessionsRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floatchat_sessions_removed_total",
				Help: "Total sessions removed locally by reason",
			},
			[]string{"reason"},
		),
		SweepsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "floatchat_sweeps_total",
				Help: "Total reconciliation sweeps executed",
			},
		),
		SweepRemovals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "floatchat_sweep_removals_total",
				Help: "Total sessions pruned by reconciliation sweeps",
			},
		),
		BackendUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "floatchat_backend_up",
				Help: "Whether the backend health probe last succeeded",
			},
		),
	}
}

// RecordSend records one send attempt with its outcome and duration.
func (m *Metrics) RecordSend(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(outcome).Inc()
	m.SendDuration.Observe(elapsed.Seconds())
}

// RecordActiveSessions updates the active-session gauge.
func (m *Metrics) RecordActiveSessions(active int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(active))
}

// RecordSessionCreated records a successful remote create.
func (m *Metrics) RecordSessionCreated(active int) {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Set(float64(active))
}

// RecordSessionRemoved records a local removal.
func (m *Metrics) RecordSessionRemoved(reason string, active int) {
	if m == nil {
		return
	}
	m.SessionsRemoved.WithLabelValues(reason).Inc()
	m.SessionsActive.Set(float64(active))
}

// RecordSweep records one sweep run and how many sessions it pruned.
func (m *Metrics) RecordSweep(removed int) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.SweepRemovals.Add(float64(removed))
}

// RecordBackendUp records the latest health probe result.
func (m *Metrics) RecordBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BackendUp.Set(1)
	} else {
		m.BackendUp.Set(0)
	}
}
