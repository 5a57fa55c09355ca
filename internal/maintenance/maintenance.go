// Package maintenance runs periodic sweeps over execution history: reaping
// runs stuck in the running state after an ungraceful shutdown, and pruning
// old terminal rows so the history table stays bounded.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "researchd/pkg/logx"
)

const (
	defaultReapAfter = 6 * time.Hour
	defaultReapSpec  = "*/30 * * * *"
	defaultPruneKeep = 500
	defaultPruneSpec = "0 3 * * *"

	reapReason = "reaped: run exceeded the stale threshold without finishing"
)

// Sweeper is the slice of the execution store the sweeps need.
type Sweeper interface {
	ReapStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	PruneTerminal(ctx context.Context, keep int) (int64, error)
}

type Config struct {
	ReapEnabled bool
	ReapAfter   time.Duration // default 6h
	ReapSpec    string        // standard five-field cron spec

	PruneEnabled bool
	PruneKeep    int
	PruneSpec    string
}

func (c Config) withDefaults() Config {
	if c.ReapAfter <= 0 {
		c.ReapAfter = defaultReapAfter
	}
	if c.ReapSpec == "" {
		c.ReapSpec = defaultReapSpec
	}
	if c.PruneKeep <= 0 {
		c.PruneKeep = defaultPruneKeep
	}
	if c.PruneSpec == "" {
		c.PruneSpec = defaultPruneSpec
	}
	return c
}

// Service schedules the sweeps on their cron specs.
type Service struct {
	cfg   Config
	store Sweeper
	log   logx.Logger
	cron  *cron.Cron
}

func New(cfg Config, s Sweeper, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), store: s, log: log}
}

// Start registers the enabled sweeps and launches the cron runner. A nil
// error with nothing enabled is fine; Stop stays safe to call.
func (s *Service) Start() error {
	c := cron.New()
	if s.cfg.ReapEnabled {
		if _, err := c.AddFunc(s.cfg.ReapSpec, s.reap); err != nil {
			return fmt.Errorf("maintenance: bad reap spec %q: %w", s.cfg.ReapSpec, err)
		}
	}
	if s.cfg.PruneEnabled {
		if _, err := c.AddFunc(s.cfg.PruneSpec, s.prune); err != nil {
			return fmt.Errorf("maintenance: bad prune spec %q: %w", s.cfg.PruneSpec, err)
		}
	}
	s.cron = c
	c.Start()
	s.log.Info("maintenance started",
		logx.Bool("reap", s.cfg.ReapEnabled),
		logx.Bool("prune", s.cfg.PruneEnabled),
	)
	return nil
}

// Stop halts the cron runner and waits for a sweep in flight.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("maintenance stopped")
}

// ReapNow sweeps immediately, outside the schedule. The startup path uses
// it so runs orphaned by a crash are failed before the first scan.
func (s *Service) ReapNow(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ReapAfter)
	n, err := s.store.ReapStale(ctx, cutoff, reapReason)
	if err != nil {
		s.log.Error("reap sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Warn("reaped stale runs", logx.Int64("count", n),
			logx.Duration("older_than", s.cfg.ReapAfter))
	}
}

func (s *Service) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.ReapNow(ctx)
}

func (s *Service) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.store.PruneTerminal(ctx, s.cfg.PruneKeep)
	if err != nil {
		s.log.Error("prune sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("pruned old executions", logx.Int64("count", n),
			logx.Int("keep", s.cfg.PruneKeep))
	}
}
