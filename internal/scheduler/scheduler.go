// Package scheduler runs the background sweep that reconciles or expires
// pending payment markers left behind by abandoned checkouts.
package scheduler

import (
	"context"
	"time"

	"github.com/hydranet/aquabill/internal/clock"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config controls sweep cadence and staleness.
type Config struct {
	// RunInterval is how often the sweep fires.
	RunInterval time.Duration
	// StaleAfter is the minimum marker age before the sweep touches it.
	// Fresh markers are the payer's to finish; the sweep only cleans up.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		StaleAfter:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	return c
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Reconcile reconciledomain.Service
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	reconcile reconciledomain.Service

	sweepRuns    prometheus.Counter
	sweepSettled prometheus.Counter
	sweepErrors  prometheus.Counter
}

func New(p Params) *Scheduler {
	s := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		reconcile: p.Reconcile,
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquabill_sweep_runs_total",
			Help: "Number of marker sweep passes.",
		}),
		sweepSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquabill_sweep_settled_total",
			Help: "Markers resolved, failed, or expired by the sweep.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquabill_sweep_errors_total",
			Help: "Sweep passes that ended in error.",
		}),
	}
	for _, c := range []prometheus.Counter{s.sweepRuns, s.sweepSettled, s.sweepErrors} {
		if err := prometheus.Register(c); err != nil {
			// Re-registration happens in tests; the sweep works without it.
			s.log.Debug("metric registration skipped", zap.Error(err))
		}
	}
	return s
}

// RunForever sweeps on the configured interval until the context ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("marker sweep started",
		zap.Duration("interval", s.cfg.RunInterval),
		zap.Duration("stale_after", s.cfg.StaleAfter),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("marker sweep stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sweepRuns.Inc()
	settled, err := s.reconcile.SweepStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		s.sweepErrors.Inc()
		s.log.Warn("marker sweep failed", zap.Error(err))
		return
	}
	s.sweepSettled.Add(float64(settled))
	if settled > 0 {
		s.log.Info("marker sweep settled markers", zap.Int("settled", settled))
	}
}
