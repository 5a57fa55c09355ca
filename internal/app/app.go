// Package app assembles the daemon: config, logging, storage, the scan
// loop, the run executor, maintenance sweeps, the event stream and the
// HTTP API, with one graceful shutdown path through all of them.
package app

import (
	"context"
	"fmt"
	"time"

	"researchd/internal/config"
	"researchd/internal/eventbus"
	"researchd/internal/executor"
	"researchd/internal/httpapi"
	"researchd/internal/maintenance"
	"researchd/internal/research"
	"researchd/internal/runtime/supervisor"
	"researchd/internal/scheduler"
	"researchd/internal/store"
	"researchd/internal/stream"
	logx "researchd/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   *store.Store
	bus     eventbus.Bus
	tracker *scheduler.Tracker
	sched   *scheduler.Service
	maint   *maintenance.Service
	hub     *stream.Hub
	api     *httpapi.Server
	sup     *supervisor.Supervisor

	drainTimeout time.Duration
	schedEnabled bool
}

// New loads and validates the config file at path and builds every
// component. Nothing is started yet.
func New(path string) (*App, error) {
	cfgMgr := config.NewManager(path)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	cfgMgr.SetLogger(log.With(logx.String("component", "config")))

	st, err := store.Open(store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: durationOr(cfg.Database.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("component", "store")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := eventbus.New()
	tracker := scheduler.NewTracker()

	engine := research.NewHTTPEngine(research.Config{
		URL:          cfg.Engine.URL,
		APIKey:       cfg.Engine.APIKey,
		Model:        cfg.Engine.Model,
		APIBase:      cfg.Engine.APIBase,
		Retriever:    cfg.Engine.Retriever,
		TavilyAPIKey: cfg.Engine.TavilyAPIKey,
		GoogleAPIKey: cfg.Engine.GoogleAPIKey,
		GoogleCX:     cfg.Engine.GoogleCX,
		BingAPIKey:   cfg.Engine.BingAPIKey,
		SerperAPIKey: cfg.Engine.SerperAPIKey,
		Language:     cfg.Engine.Language,
		ReportFormat: cfg.Engine.ReportFormat,
		MaxResults:   cfg.Engine.MaxResults,
		Timeout:      durationOr(cfg.Engine.Timeout, 0),
	}, log.With(logx.String("component", "engine")))

	runner := executor.NewRunner(engine, st.Executions(), tracker, bus, log.With(logx.String("component", "executor")))
	sched := scheduler.New(scheduler.Config{
		WarmupDelay:  durationOr(cfg.Scheduler.WarmupDelay, 10*time.Second),
		ScanInterval: durationOr(cfg.Scheduler.ScanInterval, time.Minute),
	}, st.Jobs(), tracker, runner, bus, log.With(logx.String("component", "scheduler")))

	maint := maintenance.New(maintenanceConfig(cfg), st.Executions(), log.With(logx.String("component", "maintenance")))
	hub := stream.NewHub(bus, log.With(logx.String("component", "stream")))
	api := httpapi.NewServer(httpapi.Config{
		Addr:            cfg.Server.Addr,
		ReadRatePerMin:  cfg.Server.ReadRatePerMin,
		WriteRatePerMin: cfg.Server.WriteRatePerMin,
	}, st.Jobs(), st.Executions(), tracker, hub, log.With(logx.String("component", "http")))

	return &App{
		cfgMgr:       cfgMgr,
		logSvc:       logSvc,
		log:          log.With(logx.String("component", "app")),
		store:        st,
		bus:          bus,
		tracker:      tracker,
		sched:        sched,
		maint:        maint,
		hub:          hub,
		api:          api,
		drainTimeout: durationOr(cfg.Scheduler.DrainTimeout, 30*time.Second),
		schedEnabled: cfg.SchedulerEnabled(),
	}, nil
}

// Start brings every component up. It returns once everything is running;
// failures of the HTTP listener surface later via Err.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log)

	// Runs orphaned by a previous crash are failed before the first scan so
	// their jobs are dispatchable again.
	a.maint.ReapNow(ctx)
	if err := a.maint.Start(); err != nil {
		return err
	}

	a.sup.Go0("event-hub", a.hub.Run)
	a.sup.GoRestart("config-watch", a.cfgMgr.Watch)
	a.sup.Go0("config-reload", a.watchReloads)
	a.sup.Go("http", func(context.Context) error { return a.api.Start() })

	if a.schedEnabled {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Warn("scheduler disabled by config; jobs will not fire")
	}

	a.log.Info("researchd up")
	return nil
}

// Stop tears the daemon down in dependency order: stop accepting work,
// drain in-flight runs up to the configured grace, then close the rest.
func (a *App) Stop(ctx context.Context) {
	a.log.Info("shutting down")

	if a.schedEnabled {
		a.sched.Stop()
	}
	a.drainRuns()

	shCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.api.Shutdown(shCtx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	cancel()

	a.maint.Stop()
	a.hub.Stop()

	if a.sup != nil {
		supCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.sup.Stop(supCtx); err != nil {
			a.log.Warn("supervised goroutines", logx.Err(err))
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", logx.Err(err))
	}
	a.log.Info("bye")
	a.logSvc.Close()
}

// Err reports the first failure among supervised goroutines, typically a
// dead HTTP listener. Nil while everything still runs.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// drainRuns gives dispatched runs the configured grace to finish. Runs
// still going after that keep running; the reaper fails their records on
// the next start.
func (a *App) drainRuns() {
	if a.tracker.Executing() == 0 {
		return
	}
	a.log.Info("draining in-flight runs",
		logx.Int("count", a.tracker.Executing()),
		logx.Duration("grace", a.drainTimeout),
	)
	deadline := time.Now().Add(a.drainTimeout)
	for a.tracker.Executing() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if n := a.tracker.Executing(); n > 0 {
		a.log.Warn("abandoning runs still in flight after drain grace", logx.Int("count", n))
	}
}

// watchReloads applies config changes that are safe to take at runtime.
// Everything else (listen address, database path, scheduler cadence) needs
// a restart and is logged as such.
func (a *App) watchReloads(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.logSvc.Apply(logConfig(cfg))
			a.log.Info("config reloaded; runtime log settings applied, structural changes need a restart")
		case <-ctx.Done():
			return
		}
	}
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	}
}

func maintenanceConfig(cfg *config.Config) maintenance.Config {
	mc := maintenance.Config{ReapEnabled: cfg.ReapEnabled()}
	if m := cfg.Maintenance; m != nil {
		mc.ReapAfter = durationOr(m.Reap.After, 0)
		mc.ReapSpec = m.Reap.Spec
		mc.PruneEnabled = m.Prune.Enabled
		mc.PruneKeep = m.Prune.Keep
		mc.PruneSpec = m.Prune.Spec
	}
	return mc
}

// durationOr parses an already-validated duration field; blank or broken
// values fall back to def.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
