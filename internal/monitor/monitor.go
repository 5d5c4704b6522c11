// Package monitor polls the backend health endpoint and caches the
// result. The flag gates UI affordances and the reconciliation
// sweeper; it is never authoritative for session validity.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/argoview/floatchat/internal/infrastructure/monitoring"
	"github.com/argoview/floatchat/internal/logging"
)

// HealthChecker probes the backend. Implemented by backend.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Monitor runs an independent periodic health poll.
type Monitor struct {
	checker  HealthChecker
	interval time.Duration
	log      *logging.Logger
	metrics  *monitoring.Metrics

	up      atomic.Bool
	probed  atomic.Bool
	changed func(up bool)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a monitor. onChange may be nil; it fires on transitions
// only, never on the first probe.
func New(checker HealthChecker, interval time.Duration, log *logging.Logger, metrics *monitoring.Metrics, onChange func(up bool)) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: interval,
		log:      log.Named("monitor"),
		metrics:  metrics,
		changed:  onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start probes immediately, then on every tick until Stop or context
// cancellation.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.Probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Probe runs one health check and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	up := m.checker.HealthCheck(ctx)

	prev := m.up.Swap(up)
	first := !m.probed.Swap(true)
	m.metrics.RecordBackendUp(up)

	if !first && prev != up {
		m.log.Info("backend status changed", zap.Bool("up", up))
		if m.changed != nil {
			m.changed(up)
		}
	}
	return up
}

// Up reports the last observed backend status. False until the first
// probe completes.
func (m *Monitor) Up() bool {
	return m.probed.Load() && m.up.Load()
}
