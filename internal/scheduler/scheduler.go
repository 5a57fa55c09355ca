// Package scheduler drives the recurring scan loop: every interval it walks
// the enabled jobs, matches their time specs against the current wall clock,
// and dispatches due runs without waiting for them to finish.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"researchd/internal/eventbus"
	"researchd/internal/metrics"
	"researchd/internal/store"
	"researchd/internal/timespec"
	logx "researchd/pkg/logx"
)

// Runner executes one job run to completion. Implementations own the run
// record, the engine call and the tracker release.
type Runner interface {
	Run(ctx context.Context, job store.Job)
}

// JobSource yields the jobs a scan considers.
type JobSource interface {
	ListEnabled(ctx context.Context) ([]store.Job, error)
}

type Config struct {
	// WarmupDelay holds the first scan back after startup so the rest of the
	// process can settle. Default 10s.
	WarmupDelay time.Duration
	// ScanInterval is the pause between scan passes. Default 60s.
	ScanInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WarmupDelay <= 0 {
		c.WarmupDelay = 10 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 60 * time.Second
	}
	return c
}

// ScanSummary is what one scan pass did. Published on the event bus and
// logged after every pass. Skipped covers every examined job that was not
// launched (not due, bad or empty spec, already running, already fired this
// window), so Examined == Launched + Skipped.
type ScanSummary struct {
	Window   string `json:"window"`
	Examined int    `json:"examined"`
	Launched int    `json:"launched"`
	Skipped  int    `json:"skipped"`
}

// Service owns the scan loop goroutine.
type Service struct {
	cfg     Config
	jobs    JobSource
	tracker *Tracker
	runner  Runner
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(cfg Config, jobs JobSource, tracker *Tracker, runner Runner, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		jobs:    jobs,
		tracker: tracker,
		runner:  runner,
		bus:     bus,
		log:     log,
	}
}

// Start launches the loop goroutine. Starting twice is an error.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler: already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
	s.log.Info("scheduler started",
		logx.Duration("warmup", s.cfg.WarmupDelay),
		logx.Duration("interval", s.cfg.ScanInterval),
	)
	return nil
}

// Stop halts the loop and waits for the in-progress scan pass (not for
// dispatched runs; those drain separately).
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.log.Info("scheduler stopped")
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	warmup := time.NewTimer(s.cfg.WarmupDelay)
	defer warmup.Stop()
	select {
	case <-warmup.C:
	case <-stop:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		s.ScanOnce(ctx, time.Now())
		select {
		case <-ticker.C:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ScanOnce runs a single scan pass against the given wall clock instant.
// All jobs in one pass are judged against the same instant, so a pass that
// straddles a minute boundary cannot split its view of "now". Scan errors
// are logged and absorbed; the loop never dies over one bad pass.
func (s *Service) ScanOnce(ctx context.Context, now time.Time) ScanSummary {
	window := timespec.WindowKey(now)
	sum := ScanSummary{Window: window}
	metrics.ScansTotal.Inc()

	jobs, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		s.log.Error("scan: listing enabled jobs failed", logx.Err(err))
		return sum
	}

	for _, job := range jobs {
		sum.Examined++
		spec := strings.TrimSpace(job.Spec)
		if spec == "" {
			sum.Skipped++
			s.log.Warn("scan: job has empty time spec",
				logx.Int64("job_id", job.ID), logx.String("name", job.Name))
			continue
		}
		parsed, err := timespec.Parse(spec)
		if err != nil {
			sum.Skipped++
			s.log.Warn("scan: job has malformed time spec",
				logx.Int64("job_id", job.ID), logx.String("spec", spec), logx.Err(err))
			continue
		}
		if !parsed.Matches(now) {
			sum.Skipped++
			continue
		}
		if !s.tracker.TryReserve(job.ID, window) {
			sum.Skipped++
			s.log.Debug("scan: job not dispatched (running or already fired this hour)",
				logx.Int64("job_id", job.ID), logx.String("window", window))
			continue
		}
		sum.Launched++
		s.log.Info("scan: dispatching job",
			logx.Int64("job_id", job.ID),
			logx.String("name", job.Name),
			logx.String("window", window),
		)
		go s.runner.Run(ctx, job)
	}

	metrics.JobsExaminedTotal.Add(float64(sum.Examined))
	metrics.JobsLaunchedTotal.Add(float64(sum.Launched))
	metrics.JobsSkippedTotal.Add(float64(sum.Skipped))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScanDone, Data: sum})
	}
	s.log.Debug("scan pass done",
		logx.String("window", window),
		logx.Int("examined", sum.Examined),
		logx.Int("launched", sum.Launched),
		logx.Int("skipped", sum.Skipped),
		logx.Int("in_flight", s.tracker.Executing()),
	)
	return sum
}
