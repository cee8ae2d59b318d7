package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"watchdog/internal/config"
	"watchdog/internal/eventlog"
	"watchdog/internal/metrics"
	"watchdog/internal/services/scheduler"
	"watchdog/internal/storage"
	logx "watchdog/pkg/logx"
)

// App wires the host services together: config, logging, event store,
// scheduler, admin surface and the plugin manager.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	met   *metrics.Metrics
	store storage.Store
	rec   *eventlog.Recorder

	sched *scheduler.Service
	admin *adminServer

	pm *PluginManager
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg.Logging))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	met := metrics.New(prometheus.DefaultRegisterer)

	store, err := openStore(cfg.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rec := eventlog.NewRecorder(store, log.With(logx.String("comp", "recorder")), met)
	logs.SetSink(eventlog.NewBridge(rec, "host"))

	schedCfg, err := schedulerCfg(cfg.Scheduler)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), met)

	admin := newAdminServer(log, store, sched)

	app := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		met:     met,
		store:   store,
		rec:     rec,
		sched:   sched,
		admin:   admin,
	}
	app.pm = NewPluginManager(log.With(logx.String("comp", "plugins")), cfgm, PluginDeps{
		Logger:   log,
		Config:   cfgm,
		Store:    store,
		Recorder: rec,
		Metrics:  met,
		Services: &Services{Scheduler: sched},
	})
	return app, nil
}

func (a *App) Plugins() *PluginManager      { return a.pm }
func (a *App) Recorder() *eventlog.Recorder { return a.rec }
func (a *App) Logger() logx.Logger          { return a.log }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.sup = NewSupervisor(ctx, WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if cfg.Scheduler.Enabled {
		a.sched.Start(ctx)
	}
	a.admin.Apply(ctx, cfg.Admin)
	a.pm.StartAll(ctx)

	// Hot reload: watch the file, apply committed updates to services.
	a.sup.Go("config-watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(ctx, next)
			}
		}
	})

	a.log.Info("watchdogd started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logCfg(cfg.Logging))

	if sc, err := schedulerCfg(cfg.Scheduler); err != nil {
		a.log.Warn("scheduler config rejected", logx.Err(err))
	} else {
		a.sched.Apply(sc)
		if sc.Enabled {
			a.sched.Start(ctx)
		} else {
			a.sched.Stop(ctx)
		}
	}

	a.admin.Apply(ctx, cfg.Admin)
	a.pm.OnConfigUpdate(ctx, cfg)
	a.log.Info("configuration reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.pm.StopAll(ctx)
	a.sched.Stop(ctx)
	a.admin.Stop(ctx)

	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close failed", logx.Err(err))
		}
	}
	a.log.Info("watchdogd stopped")
	return a.logs.Close()
}

func logCfg(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Events: logx.EventsConfig{
			Enabled:    c.Events.Enabled,
			MinLevel:   c.Events.MinLevel,
			RatePerSec: c.Events.RatePerSec,
		},
	}
}

func schedulerCfg(c config.SchedulerConfig) (scheduler.Config, error) {
	timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", c.DefaultTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        c.Enabled,
		Workers:        c.Workers,
		DefaultTimeout: timeout,
		HistorySize:    c.HistorySize,
		Timezone:       c.Timezone,
		RetryMax:       c.RetryMax,
	}, nil
}

func openStore(c *config.StorageConfig, log logx.Logger) (storage.Store, error) {
	if c == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
	}, log)
}
