package dblog

import (
	"context"
	"fmt"
	"time"

	"watchdog/internal/core"
	"watchdog/internal/retention"
	logx "watchdog/pkg/logx"
)

// runRetention is the scheduled trim pass. The row limit is re-read from
// the live configuration on every run so an operator edit takes effect
// without waiting for a plugin restart. If the settings block cannot be
// read the pass aborts without deleting anything.
func (p *Plugin) runRetention(ctx context.Context) error {
	rowLimit, err := p.liveRowLimit()
	if err != nil {
		p.Deps.Metrics.RetentionPass("config_error", 0, 0)
		p.Log.Warn("retention skipped, settings unreadable", logx.Err(err))
		return err
	}
	if rowLimit <= 0 {
		p.Deps.Metrics.RetentionPass("disabled", 0, 0)
		return nil
	}

	start := time.Now()
	deleted, err := retention.Enforce(ctx, p.Deps.Store, rowLimit)
	elapsed := time.Since(start)
	if err != nil {
		p.Deps.Metrics.RetentionPass("error", 0, elapsed.Seconds())
		return fmt.Errorf("retention pass: %w", err)
	}
	p.Deps.Metrics.RetentionPass("ok", deleted, elapsed.Seconds())
	if deleted > 0 {
		p.Log.Info("retention pass done",
			logx.Int64("deleted", deleted),
			logx.Int("row_limit", rowLimit),
			logx.Duration("took", elapsed))
	} else {
		p.Log.Debug("retention pass done, nothing to trim", logx.Int("row_limit", rowLimit))
	}
	return nil
}

// liveRowLimit reads the current plugin settings from the config manager.
// Falls back to the last applied value only when no config manager is
// wired (tests); a present-but-broken block is an error, not a fallback.
func (p *Plugin) liveRowLimit() (int, error) {
	if p.Deps.Config == nil {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.rowLimit, nil
	}
	block, ok := p.Deps.Config.PluginRaw(p.Name())
	if !ok {
		// Block removed entirely: defaults apply.
		return defaultRowLimit, nil
	}
	cfg, err := core.DecodePluginConfig[Config](block.Config)
	if err != nil {
		return 0, fmt.Errorf("read settings: %w", err)
	}
	rowLimit, _, _, err := cfg.normalize()
	if err != nil {
		return 0, err
	}
	return rowLimit, nil
}
