package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"expirywatch/internal/config"
	"expirywatch/internal/dispatch"
	"expirywatch/internal/ledger"
	"expirywatch/internal/opsapi"
	"expirywatch/internal/runtime/supervisor"
	"expirywatch/internal/scheduler"
	"expirywatch/internal/tracker"
	logx "expirywatch/pkg/logx"
)

// Job names.
const (
	JobCycle   = "cycle"
	JobWeekly  = "weekly-summary"
	JobMonthly = "monthly-report"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	reg     *prometheus.Registry
	metrics *dispatch.Metrics

	locks     *ledger.Locks
	ledger    ledger.Ledger
	store     tracker.Store
	trackerDB *sql.DB

	runner atomic.Pointer[dispatch.Runner]
	sched  *scheduler.Service
	api    *opsapi.Server

	logLevel string
}

type Option func(*App)

// WithLogLevel overrides logging.level, including after hot reloads.
func WithLogLevel(level string) Option {
	return func(a *App) { a.logLevel = strings.TrimSpace(level) }
}

// NewApp loads cfgPath and opens the ledger and tracker. Nothing runs in the
// background until Start.
func NewApp(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		reg:     prometheus.NewRegistry(),
		locks:   ledger.NewLocks(),
	}
	for _, o := range opts {
		o(a)
	}
	logSvc, log := logx.New(a.logConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = dispatch.NewMetrics(a.reg)

	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	a.ledger, err = openLedger(ctx, cfg, log.With(logx.String("comp", "ledger")))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	loc, err := scheduler.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return nil, err
	}
	a.store, a.trackerDB, err = openTracker(ctx, cfg, loc, log.With(logx.String("comp", "tracker")))
	if err != nil {
		return nil, fmt.Errorf("open tracker: %w", err)
	}

	r, err := a.buildRunner(cfg)
	if err != nil {
		return nil, err
	}
	a.runner.Store(r)

	a.sched, err = scheduler.New(cfg.Schedule.Zone(cfg.Tracker.Timezone), log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return nil, err
	}
	for _, j := range a.jobs(cfg) {
		if err := a.sched.Add(j); err != nil {
			return nil, err
		}
	}

	ok = true
	a.log.Info("app ready",
		logx.String("storage", cfg.Storage.Driver),
		logx.String("tracker", cfg.Tracker.Driver),
		logx.Any("channels", r.Channels()),
	)
	return a, nil
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	return logx.Config{
		Level:   level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) buildRunner(cfg *config.Config) (*dispatch.Runner, error) {
	targets, err := buildTargets(cfg)
	if err != nil {
		return nil, err
	}
	pred, predTimeout, err := buildPredictor(cfg)
	if err != nil {
		return nil, err
	}
	rc, err := runnerConfig(cfg, predTimeout)
	if err != nil {
		return nil, err
	}
	router := dispatch.NewRouter(targets, a.ledger,
		dispatch.WithMetrics(a.metrics),
		dispatch.WithLogger(a.log.With(logx.String("comp", "router"))),
		dispatch.WithLocks(a.locks),
	)
	return dispatch.NewRunner(rc, dispatch.Deps{
		Store:     a.store,
		Router:    router,
		Predictor: pred,
		Metrics:   a.metrics,
		Log:       a.log.With(logx.String("comp", "dispatch")),
	}), nil
}

func (a *App) jobs(cfg *config.Config) []scheduler.Job {
	if !cfg.Schedule.Enabled {
		return nil
	}
	return []scheduler.Job{
		{Name: JobCycle, Spec: cfg.Schedule.DailyOrDefault(), Run: func(ctx context.Context) error {
			_, err := a.RunCycle(ctx)
			return err
		}},
		{Name: JobWeekly, Spec: cfg.Schedule.WeeklyOrDefault(), Run: func(ctx context.Context) error {
			_, err := a.runner.Load().WeeklySummary(ctx)
			return err
		}},
		{Name: JobMonthly, Spec: cfg.Schedule.MonthlyOrDefault(), Run: func(ctx context.Context) error {
			_, err := a.runner.Load().MonthlyReport(ctx)
			if errors.Is(err, dispatch.ErrNoStatistics) {
				return nil
			}
			return err
		}},
	}
}

// RunCycle runs one dispatch cycle with the current configuration.
func (a *App) RunCycle(ctx context.Context) (dispatch.BatchReport, error) {
	return a.runner.Load().RunCycle(ctx)
}

// WeeklySummary broadcasts the weekly summary now.
func (a *App) WeeklySummary(ctx context.Context) (dispatch.Result, error) {
	return a.runner.Load().WeeklySummary(ctx)
}

// History returns the ledger records of an item.
func (a *App) History(ctx context.Context, itemID int64) ([]ledger.Record, error) {
	return a.ledger.History(ctx, itemID)
}

// Stats returns tracker statistics; ok is false when the tracker cannot
// summarize itself.
func (a *App) Stats(ctx context.Context) (tracker.Stats, bool, error) {
	src, ok := a.store.(tracker.StatsSource)
	if !ok {
		return tracker.Stats{}, false, nil
	}
	st, err := src.Statistics(ctx)
	return st, true, err
}

// ReloadConfig re-reads the config file now. Changes reach the app through
// the same subscription the file watcher feeds.
func (a *App) ReloadConfig(ctx context.Context) error {
	changed, err := a.cfgm.Reload(ctx)
	if err == nil && !changed {
		a.log.Info("config reload requested; file unchanged")
	}
	return err
}

// Metrics returns the registry backing /metrics.
func (a *App) Metrics() *prometheus.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// HTTPAddr returns the bound ops API address, or "" when it is disabled.
func (a *App) HTTPAddr() string {
	if a.api == nil {
		return ""
	}
	return a.api.Addr()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if cfg.HTTP.Enabled {
		api := opsapi.New(a.log.With(logx.String("comp", "opsapi")), opsapi.Deps{
			Cycles:    a,
			Ledger:    a,
			Stats:     a,
			Gatherer:  a.reg,
			Profiling: cfg.HTTP.Pprof,
		})
		srv, err := opsapi.Listen(cfg.HTTP.ListenAddr(), api.Handler(), a.log.With(logx.String("comp", "http")))
		if err != nil {
			a.sup.Cancel()
			return fmt.Errorf("http listen: %w", err)
		}
		a.api = srv
		a.sup.Go("http.serve", func(context.Context) error { return srv.Serve() })
	}

	if cfg.Schedule.Enabled {
		a.sched.Start(a.sup.Context())
		if next, ok := a.sched.Next(JobCycle); ok {
			a.log.Info("next cycle scheduled", logx.Time("at", next))
		}
	}
	if cfg.Schedule.RunOnStart {
		a.sup.Go0("cycle.startup", func(c context.Context) {
			if _, err := a.RunCycle(c); err != nil {
				a.log.Warn("startup cycle failed", logx.Err(err))
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig hot-applies newCfg. Sections that are opened once only log
// that a restart is needed.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if ch.RestartRequired {
		a.log.Warn("storage, tracker source or http config changed; restart required for changes to take effect")
	}

	if ch.Has("logging") {
		a.logs.Apply(a.logConfig(newCfg))
	}

	if ch.Has("tracker") || ch.Has("scoring") || ch.Has("predictor") || ch.Has("dispatch") || ch.Has("channels") {
		r, err := a.buildRunner(newCfg)
		if err != nil {
			a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
		} else {
			a.runner.Store(r)
			a.log.Info("dispatch reconfigured", logx.Any("channels", r.Channels()))
		}
	}

	if ch.Has("schedule") || oldCfg.Tracker.Timezone != newCfg.Tracker.Timezone {
		was, now := oldCfg.Schedule.Enabled, newCfg.Schedule.Enabled
		if err := a.sched.Reset(newCfg.Schedule.Zone(newCfg.Tracker.Timezone), a.jobs(newCfg)); err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		} else {
			switch {
			case was && !now:
				a.log.Info("scheduler disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.sched.Stop(stopCtx)
				cancel()
			case !was && now:
				a.log.Info("scheduler enabled via config")
				a.sched.Start(ctx)
			}
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			// fn must honor stepCtx; anything still running is reported and left behind.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 3*time.Second, func(c context.Context) error {
		if a.api != nil {
			return a.api.Shutdown(c)
		}
		return nil
	})
	// Wait for supervised goroutines (config watch/reload, startup cycle, http).
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.closeResources()
	return nil
}

// Close releases the ledger, tracker and log outputs of an app that was
// never started.
func (a *App) Close() error {
	if a.sup != nil {
		return errors.New("app: started; use Stop")
	}
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("ledger close failed", logx.Err(err))
		}
		a.ledger = nil
	}
	if a.trackerDB != nil {
		if err := a.trackerDB.Close(); err != nil {
			a.log.Warn("tracker close failed", logx.Err(err))
		}
		a.trackerDB = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}
