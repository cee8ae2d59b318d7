package dblog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"watchdog/internal/config"
	"watchdog/internal/core"
	"watchdog/internal/eventlog"
	"watchdog/internal/storage"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	t.Parallel()
	rowLimit, schedule, timeout, err := Config{}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rowLimit != defaultRowLimit {
		t.Fatalf("rowLimit = %d, want %d", rowLimit, defaultRowLimit)
	}
	if schedule != defaultSchedule {
		t.Fatalf("schedule = %q, want %q", schedule, defaultSchedule)
	}
	if timeout != defaultTimeout {
		t.Fatalf("timeout = %v, want %v", timeout, defaultTimeout)
	}
}

func TestConfigNormalizeExplicitZeroIsUnlimited(t *testing.T) {
	t.Parallel()
	zero := 0
	rowLimit, _, _, err := Config{RowLimit: &zero}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rowLimit != 0 {
		t.Fatalf("rowLimit = %d, want 0 (unlimited)", rowLimit)
	}
}

func TestConfigNormalizeRejectsNegative(t *testing.T) {
	t.Parallel()
	neg := -1
	if _, _, _, err := (Config{RowLimit: &neg}).normalize(); err == nil {
		t.Fatal("expected error for negative row_limit")
	}

	if _, _, _, err := (Config{Timeout: "soon"}).normalize(); err == nil {
		t.Fatal("expected error for unparseable timeout")
	}
}

func newTestPlugin(t *testing.T, st storage.Store) *Plugin {
	t.Helper()
	p := New()
	p.InitBase(core.PluginDeps{Store: st}, p.Name())
	return p
}

func fillStore(t *testing.T, st storage.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := st.Append(ctx, eventlog.Event{Message: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestRetentionPassTrimsStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	fillStore(t, st, 30)

	p := newTestPlugin(t, st)
	if err := p.OnConfigChange(ctx, json.RawMessage(`{"row_limit":10}`)); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}
	if err := p.runRetention(ctx); err != nil {
		t.Fatalf("runRetention: %v", err)
	}
	if n, _ := st.Count(ctx); n != 10 {
		t.Fatalf("Count = %d, want 10", n)
	}

	// The surviving entries must be the newest ones.
	recent, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent[0].ID != 30 || recent[9].ID != 21 {
		t.Fatalf("kept ids %d..%d, want 30..21", recent[0].ID, recent[9].ID)
	}
}

func TestRetentionPassAbortsWhenSettingsUnreadable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	fillStore(t, st, 20)

	p := New()
	m := config.NewManager("unused")
	m.Commit(&config.Config{Plugins: map[string]config.PluginConfigRaw{
		p.Name(): {Enabled: true, Config: json.RawMessage(`{"row_limit":"many"}`)},
	}})
	p.InitBase(core.PluginDeps{Store: st, Config: m}, p.Name())

	if err := p.runRetention(ctx); err == nil {
		t.Fatal("expected error when the settings block cannot be decoded")
	}
	if n, _ := st.Count(ctx); n != 20 {
		t.Fatalf("Count = %d, want 20 (nothing deleted on unreadable settings)", n)
	}
}

func TestRetentionPassReadsLiveSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	fillStore(t, st, 20)

	p := New()
	m := config.NewManager("unused")
	m.Commit(&config.Config{Plugins: map[string]config.PluginConfigRaw{
		p.Name(): {Enabled: true, Config: json.RawMessage(`{"row_limit":5}`)},
	}})
	p.InitBase(core.PluginDeps{Store: st, Config: m}, p.Name())

	// The committed block wins over the plugin's cached default.
	if err := p.runRetention(ctx); err != nil {
		t.Fatalf("runRetention: %v", err)
	}
	if n, _ := st.Count(ctx); n != 5 {
		t.Fatalf("Count = %d, want 5", n)
	}
}

func TestRetentionPassUnlimitedIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	fillStore(t, st, 5)

	p := newTestPlugin(t, st)
	if err := p.OnConfigChange(ctx, json.RawMessage(`{"row_limit":0}`)); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}
	if err := p.runRetention(ctx); err != nil {
		t.Fatalf("runRetention: %v", err)
	}
	if n, _ := st.Count(ctx); n != 5 {
		t.Fatalf("Count = %d, want 5 (unlimited keeps everything)", n)
	}
}

func TestOnConfigChangeRejectsBadBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPlugin(t, storage.NewMemory())

	if err := p.OnConfigChange(ctx, json.RawMessage(`{"row_limit":-5}`)); err == nil {
		t.Fatal("expected error for negative row_limit")
	}
	// The previous settings survive the rejected update.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rowLimit != defaultRowLimit {
		t.Fatalf("rowLimit changed to %d after rejected update", p.rowLimit)
	}
}

func TestOnConfigChangeAppliesTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPlugin(t, storage.NewMemory())

	if err := p.OnConfigChange(ctx, json.RawMessage(`{"schedule":"30m","timeout":"15s"}`)); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.schedule != "30m" || p.timeout != 15*time.Second {
		t.Fatalf("schedule=%q timeout=%v, want 30m/15s", p.schedule, p.timeout)
	}
}
