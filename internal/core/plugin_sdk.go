package core

import (
	"context"
	"errors"
	"time"

	"watchdog/internal/services/scheduler"
	logx "watchdog/pkg/logx"
)

// PluginBase is a small helper to make writing plugins faster and safer.
// Typical usage:
//
//	type Plugin struct { core.PluginBase }
//	func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error { p.InitBase(deps, p.Name()); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); p.Runner.Go(...); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type PluginBase struct {
	Log        logx.Logger
	Deps       PluginDeps
	Runner     *Supervisor
	pluginName string

	ctx context.Context

	schedules map[string]struct{}
}

// InitBase wires deps + logger.
func (b *PluginBase) InitBase(deps PluginDeps, pluginName string) {
	b.Deps = deps
	b.pluginName = pluginName
	if deps.Logger.IsZero() {
		b.Log = logx.Nop()
	} else {
		b.Log = deps.Logger.With(logx.String("plugin", pluginName))
	}
	b.schedules = map[string]struct{}{}
}

// StartBase creates a per-plugin supervisor tied to ctx.
func (b *PluginBase) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = NewSupervisor(ctx, WithLogger(b.Log), WithCancelOnError(false))
}

// StopBase removes registered schedules, cancels the runner and waits
// bounded by ctx.
func (b *PluginBase) StopBase(ctx context.Context) error {
	if sched := b.scheduler(); sched != nil {
		for name := range b.schedules {
			sched.Remove(name)
		}
	}
	b.schedules = map[string]struct{}{}

	if b.Runner == nil {
		return nil
	}
	b.Runner.Cancel()
	err := b.Runner.Wait(ctx)
	b.Runner = nil
	return err
}

// Context returns the plugin runtime context (canceled on stop/disable).
func (b *PluginBase) Context() context.Context { return b.ctx }

// Schedule registers a cron/interval schedule under a plugin-namespaced
// name ("<plugin>:<name>") and tracks it for automatic cleanup on stop.
func (b *PluginBase) Schedule(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	sched := b.scheduler()
	if sched == nil {
		return errors.New("scheduler not available")
	}
	full := b.ns(name)
	if _, err := sched.AddSchedule(full, spec, timeout, scheduler.TaskOptions{}, job); err != nil {
		return err
	}
	if b.schedules == nil {
		b.schedules = map[string]struct{}{}
	}
	b.schedules[full] = struct{}{}
	return nil
}

// Unschedule removes a schedule registered through Schedule.
func (b *PluginBase) Unschedule(name string) {
	sched := b.scheduler()
	if sched == nil {
		return
	}
	full := b.ns(name)
	sched.Remove(full)
	delete(b.schedules, full)
}

func (b *PluginBase) scheduler() *scheduler.Service {
	if b.Deps.Services == nil {
		return nil
	}
	return b.Deps.Services.Scheduler
}

func (b *PluginBase) ns(name string) string {
	if b.pluginName == "" {
		return name
	}
	if name == "" {
		return b.pluginName
	}
	return b.pluginName + ":" + name
}
