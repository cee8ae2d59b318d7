// Package dblog is the database logging plugin: it owns the event log's
// retention policy and runs the periodic trim that keeps the log store
// bounded to the configured number of most-recent entries.
package dblog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"watchdog/internal/core"
	logx "watchdog/pkg/logx"
)

type Plugin struct {
	core.PluginBase

	mu       sync.RWMutex
	rowLimit int
	schedule string
	timeout  time.Duration
}

func New() *Plugin {
	return &Plugin{rowLimit: defaultRowLimit, schedule: defaultSchedule, timeout: defaultTimeout}
}

func (p *Plugin) Name() string { return "dblog" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(deps, p.Name())
	if deps.Store == nil {
		return fmt.Errorf("dblog requires a configured event store")
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)

	p.mu.RLock()
	schedule := p.schedule
	timeout := p.timeout
	p.mu.RUnlock()

	if err := p.Schedule("retention", schedule, timeout, p.runRetention); err != nil {
		return fmt.Errorf("register retention schedule: %w", err)
	}
	p.Log.Info("retention scheduled", logx.String("schedule", schedule))
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}

// OnConfigChange validates the settings block and reschedules the
// retention pass when the schedule changed. A rejected block keeps the
// previous settings.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	rowLimit, schedule, timeout, err := cfg.normalize()
	if err != nil {
		return err
	}
	if rowLimit > 0 && !isRecommended(rowLimit) {
		p.Log.Debug("row_limit is not one of the recommended values", logx.Int("row_limit", rowLimit))
	}

	p.mu.Lock()
	rescheduled := schedule != p.schedule || timeout != p.timeout
	p.rowLimit = rowLimit
	p.schedule = schedule
	p.timeout = timeout
	p.mu.Unlock()

	// Before Start there is no runner yet; Start picks the values up.
	if p.Context() == nil || !rescheduled {
		return nil
	}
	if err := p.Schedule("retention", schedule, timeout, p.runRetention); err != nil {
		return fmt.Errorf("reschedule retention: %w", err)
	}
	p.Log.Info("retention rescheduled", logx.String("schedule", schedule))
	return nil
}
