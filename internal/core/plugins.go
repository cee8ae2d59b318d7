package core

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"watchdog/internal/config"
	"watchdog/internal/eventlog"
	"watchdog/internal/metrics"
	"watchdog/internal/services/scheduler"
	"watchdog/internal/storage"
	logx "watchdog/pkg/logx"
)

// Plugin is the host extension point. Implementations register themselves
// in main() and are driven through Init/Start/Stop by the PluginManager.
type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ConfigurablePlugin receives its raw config block on load and on every
// accepted hot-reload. Returning an error rejects the block; the plugin
// keeps running with its previous settings.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// Services are the shared host services exposed to plugins.
type Services struct {
	Scheduler *scheduler.Service
}

type PluginDeps struct {
	Logger   logx.Logger
	Config   *config.Manager
	Store    storage.Store
	Recorder *eventlog.Recorder
	Metrics  *metrics.Metrics
	Services *Services
}

type PluginManager struct {
	mu sync.Mutex

	log  logx.Logger
	cfgm *config.Manager
	deps PluginDeps

	reg   map[string]Plugin
	order []string
	run   map[string]bool

	// last config blob hash per running plugin, to skip redundant
	// OnConfigChange calls on no-op reloads.
	lastRawHash map[string]uint64

	// per-plugin run context (cancelled on disable/stop)
	pctx    map[string]context.Context
	pcancel map[string]context.CancelFunc
}

func NewPluginManager(log logx.Logger, cfgm *config.Manager, deps PluginDeps) *PluginManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PluginManager{
		log:         log,
		cfgm:        cfgm,
		deps:        deps,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		lastRawHash: map[string]uint64{},
		pctx:        map[string]context.Context{},
		pcancel:     map[string]context.CancelFunc{},
	}
}

// Register adds plugins to the registry. Call before StartAll.
func (m *PluginManager) Register(ps ...Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, dup := m.reg[name]; dup {
			m.log.Warn("duplicate plugin registration ignored", logx.String("plugin", name))
			continue
		}
		m.reg[name] = p
		m.order = append(m.order, name)
	}
}

// StartAll initializes and starts every registered plugin that is enabled
// in the current config. Disabled plugins stay registered and may be
// enabled later via config reload.
func (m *PluginManager) StartAll(ctx context.Context) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, name := range order {
		if m.enabled(name) {
			if err := m.startOne(ctx, name); err != nil {
				m.log.Error("plugin start failed", logx.String("plugin", name), logx.Err(err))
			}
		} else {
			m.log.Debug("plugin disabled", logx.String("plugin", name))
		}
	}
}

func (m *PluginManager) StopAll(ctx context.Context) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	// Stop in reverse registration order.
	for i := len(order) - 1; i >= 0; i-- {
		m.stopOne(ctx, order[i])
	}
}

// OnConfigUpdate reconciles running plugins with a freshly committed
// config: enables, disables and re-configures as needed.
func (m *PluginManager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, name := range order {
		raw, _ := pluginBlock(cfg, name)

		m.mu.Lock()
		running := m.run[name]
		m.mu.Unlock()

		switch {
		case raw.Enabled && !running:
			if err := m.startOne(ctx, name); err != nil {
				m.log.Error("plugin enable failed", logx.String("plugin", name), logx.Err(err))
			}
		case !raw.Enabled && running:
			m.stopOne(ctx, name)
		case raw.Enabled && running:
			m.reconfigure(ctx, name, raw.Config)
		}
	}
}

func (m *PluginManager) enabled(name string) bool {
	raw, ok := m.cfgm.PluginRaw(name)
	return ok && raw.Enabled
}

func (m *PluginManager) startOne(ctx context.Context, name string) (err error) {
	m.mu.Lock()
	p := m.reg[name]
	if p == nil || m.run[name] {
		m.mu.Unlock()
		return nil
	}
	pctx, cancel := context.WithCancel(ctx)
	m.pctx[name] = pctx
	m.pcancel[name] = cancel
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.log.Error("plugin panicked during start", logx.String("plugin", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			cancel()
		}
	}()

	if err := p.Init(pctx, m.deps); err != nil {
		cancel()
		return fmt.Errorf("init: %w", err)
	}

	// Deliver initial config before Start so the plugin boots with
	// committed settings.
	if cp, ok := p.(ConfigurablePlugin); ok {
		raw, _ := m.cfgm.PluginRaw(name)
		if err := cp.OnConfigChange(pctx, raw.Config); err != nil {
			cancel()
			return fmt.Errorf("config: %w", err)
		}
		m.mu.Lock()
		m.lastRawHash[name] = config.CanonicalHashJSON(raw.Config)
		m.mu.Unlock()
	}

	if err := p.Start(pctx); err != nil {
		cancel()
		return fmt.Errorf("start: %w", err)
	}

	m.mu.Lock()
	m.run[name] = true
	m.mu.Unlock()
	m.log.Info("plugin started", logx.String("plugin", name))
	return nil
}

func (m *PluginManager) stopOne(ctx context.Context, name string) {
	m.mu.Lock()
	p := m.reg[name]
	running := m.run[name]
	cancel := m.pcancel[name]
	delete(m.pctx, name)
	delete(m.pcancel, name)
	delete(m.lastRawHash, name)
	m.run[name] = false
	m.mu.Unlock()

	if p == nil || !running {
		return
	}
	if cancel != nil {
		cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("plugin panicked during stop", logx.String("plugin", name), logx.Any("panic", r))
		}
	}()
	if err := p.Stop(ctx); err != nil {
		m.log.Warn("plugin stop failed", logx.String("plugin", name), logx.Err(err))
	} else {
		m.log.Info("plugin stopped", logx.String("plugin", name))
	}
}

func (m *PluginManager) reconfigure(ctx context.Context, name string, raw json.RawMessage) {
	m.mu.Lock()
	p := m.reg[name]
	pctx := m.pctx[name]
	last := m.lastRawHash[name]
	m.mu.Unlock()

	cp, ok := p.(ConfigurablePlugin)
	if !ok {
		return
	}
	h := config.CanonicalHashJSON(raw)
	if h == last {
		return
	}
	if pctx == nil {
		pctx = ctx
	}
	if err := cp.OnConfigChange(pctx, raw); err != nil {
		m.log.Warn("plugin rejected config; keeping previous settings", logx.String("plugin", name), logx.Err(err))
		return
	}
	m.mu.Lock()
	m.lastRawHash[name] = h
	m.mu.Unlock()
	m.log.Debug("plugin reconfigured", logx.String("plugin", name))
}

func pluginBlock(cfg *config.Config, name string) (config.PluginConfigRaw, bool) {
	if cfg == nil || cfg.Plugins == nil {
		return config.PluginConfigRaw{}, false
	}
	raw, ok := cfg.Plugins[name]
	return raw, ok
}

// DecodePluginConfig decodes a per-plugin raw json block into a typed
// config struct. Empty blocks decode to the zero value.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
