package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/argoview/floatchat/internal/backend"
	"github.com/argoview/floatchat/internal/infrastructure/monitoring"
	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/types"
)

// SessionProber is the single remote call the sweeper makes.
type SessionProber interface {
	GetSessionInfo(ctx context.Context, sessionID string) (*types.SessionInfoResponse, error)
}

// StatusSource gates the sweep on backend reachability.
type StatusSource interface {
	Up() bool
}

// SweeperConfig tunes the reconciliation sweep schedule.
type SweeperConfig struct {
	Debounce time.Duration // delay before the first sweep after startup
	Interval time.Duration // period between sweeps
	ProbeRPS float64       // per-session probe rate limit; <= 0 means unlimited
}

// Sweeper prunes local sessions the remote has forgotten. It only ever
// removes entries, never creates them, and it swallows every error:
// background hygiene, not a user-facing operation.
type Sweeper struct {
	manager *Manager
	prober  SessionProber
	status  StatusSource
	limiter *rate.Limiter
	cfg     SweeperConfig
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewSweeper creates a sweeper over the manager's session list.
func NewSweeper(manager *Manager, prober SessionProber, status StatusSource, cfg SweeperConfig, log *logging.Logger, metrics *monitoring.Metrics) *Sweeper {
	limit := rate.Inf
	if cfg.ProbeRPS > 0 {
		limit = rate.Limit(cfg.ProbeRPS)
	}
	return &Sweeper{
		manager: manager,
		prober:  prober,
		status:  status,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log.Named("sweeper"),
		metrics: metrics,
	}
}

// Run sweeps once after the debounce delay, then on every interval
// tick, until the context is cancelled. The debounce keeps the first
// sweep out of the initial load path.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.Debounce):
	}
	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep diffs the local list against remote reality and returns how
// many sessions it dropped. A session is dropped only on an explicit
// 404; ambiguous failures keep it — absence of proof of death is not
// proof of death. When the backend is reported unreachable the sweep
// is skipped entirely.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if !s.status.Up() {
		s.log.Debug("backend unreachable, skipping sweep")
		return 0
	}

	removed := 0
	for _, sess := range s.manager.Sessions() {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}

		_, err := s.prober.GetSessionInfo(ctx, sess.ID)
		switch {
		case err == nil:
			// remote still knows it
		case errors.Is(err, backend.ErrSessionExpired):
			s.log.Info("pruning session unknown to remote",
				zap.String("session_id", sess.ID))
			s.manager.discardSwept(sess.ID)
			removed++
		default:
			// transient or ambiguous; keep the session
			s.log.Debug("probe inconclusive, keeping session",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	s.metrics.RecordSweep(removed)
	if removed > 0 {
		s.log.Info("sweep complete", zap.Int("removed", removed))
	}
	return removed
}
