// Package journal forwards recorded events to the systemd journal so
// host tooling (journalctl, log shippers) sees them alongside other
// service output. On non-linux builds the plugin loads but refuses to
// start.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"watchdog/internal/core"
	"watchdog/internal/eventlog"
	logx "watchdog/pkg/logx"
)

const defaultMinSeverity = eventlog.SeverityNotice

// Config is the journal plugin settings block.
type Config struct {
	// MinSeverity is the least severe level that gets forwarded,
	// by RFC 5424 name ("warning", "notice", ...).
	MinSeverity string `json:"min_severity,omitempty"`
}

type Plugin struct {
	core.PluginBase

	// active gates the recorder tap: taps cannot be unregistered, so
	// the tap stays installed and checks this flag instead.
	active atomic.Bool
	tapped atomic.Bool

	minSeverity atomic.Int32
}

func New() *Plugin {
	p := &Plugin{}
	p.minSeverity.Store(int32(defaultMinSeverity))
	return p
}

func (p *Plugin) Name() string { return "journal" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(deps, p.Name())
	if !journalSupported() {
		return fmt.Errorf("systemd journal not available on this platform")
	}
	if deps.Recorder == nil {
		return fmt.Errorf("journal requires the event recorder")
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	if !journalPresent() {
		p.Log.Warn("systemd journal socket not found, forwarding disabled")
		return nil
	}
	p.active.Store(true)
	if p.tapped.CompareAndSwap(false, true) {
		p.Deps.Recorder.Tap(p.forward)
	}
	p.Log.Info("forwarding events to systemd journal",
		logx.String("min_severity", eventlog.Severity(p.minSeverity.Load()).String()))
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.active.Store(false)
	return p.StopBase(ctx)
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	min := defaultMinSeverity
	if cfg.MinSeverity != "" {
		min = eventlog.ParseSeverity(cfg.MinSeverity)
	}
	p.minSeverity.Store(int32(min))
	return nil
}

// forward ships one event to the journal. Runs on the recording
// goroutine, so anything slow or noisy is out of the question.
func (p *Plugin) forward(ev eventlog.Event) {
	if !p.active.Load() {
		return
	}
	// Lower RFC 5424 numbers are more severe.
	if int32(ev.Severity) > p.minSeverity.Load() {
		return
	}
	if err := sendToJournal(ev); err != nil {
		p.Log.Debug("journal send failed", logx.Err(err))
	}
}
