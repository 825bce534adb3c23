// Package scheduler drives the periodic cache reconciliation loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wingbits/crewbot/internal/observability"
)

// Refresher is the cache reconciliation surface the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context)
}

// Config configures the refresh scheduler.
type Config struct {
	// Interval between reconciliation passes.
	Interval time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", c.Interval)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Scheduler runs a full cache refresh on a fixed interval. Passes run
// sequentially; a slow pass delays the next rather than overlapping it.
type Scheduler struct {
	refresher Refresher
	cfg       Config
	logger    *slog.Logger
	cron      *cron.Cron

	cancel context.CancelFunc
}

// New creates a Scheduler. cfg is validated and defaulted in place.
func New(refresher Refresher, cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		refresher: refresher,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "scheduler"),
	}, nil
}

// Start begins the periodic refresh loop. The first pass runs after one full
// interval; callers wanting a warm cache at boot load it explicitly first.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.runPass(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling cache refresh: %w", err)
	}
	s.cron.Start()
	s.logger.Info("cache refresh scheduled", "interval", s.cfg.Interval)
	return nil
}

// Stop halts the loop, waiting for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}
	s.logger.Info("cache refresh scheduler stopped")
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.refresher.RefreshAll(ctx)
	elapsed := time.Since(start)
	s.cfg.Metrics.RefreshObserved(elapsed)
	s.logger.Debug("cache refresh pass completed", "duration", elapsed)
}
