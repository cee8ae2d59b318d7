package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "watchdog/pkg/logx"
)

const (
	reloadDebounce   = 250 * time.Millisecond
	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// Manager loads, validates and hot-reloads the daemon configuration.
// Committed configs fan out to subscribers; a subscriber that falls
// behind loses the oldest update, never the newest.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a hook run by Watch before a parsed config is
// committed and published. A validator error discards the update.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toStrictJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// A second document after the first is a malformed file, not data.
	switch err := dec.Decode(&struct{}{}); err {
	case io.EOF:
	case nil:
		return nil, fmt.Errorf("invalid config: trailing data")
	default:
		return nil, err
	}
	return &cfg, nil
}

// Commit makes cfg the current config without publishing it.
func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = contentHash(cfg)
	m.mu.Unlock()
}

// Load is Parse followed by Commit.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// PluginRaw returns the committed raw block for one plugin. Callers read
// it at the start of every maintenance pass, so a hot-reload committed a
// moment ago is always what a pass acts on.
func (m *Manager) PluginRaw(name string) (PluginConfigRaw, bool) {
	cfg := m.Get()
	if cfg == nil || cfg.Plugins == nil {
		return PluginConfigRaw{}, false
	}
	raw, ok := cfg.Plugins[name]
	return raw, ok
}

func contentHash(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Subscribe returns a channel receiving each committed config update.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, sub := range m.subs {
		if sub != ch {
			continue
		}
		m.subs[i] = m.subs[len(m.subs)-1]
		m.subs = m.subs[:len(m.subs)-1]
		close(ch)
		return
	}
}

// publish delivers cfg to every subscriber. Holding subsMu while sending
// rules out a send racing Unsubscribe's close.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		// Full buffer: the newest config matters more than a backlog,
		// so evict one stale update and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)",
				logx.Int("queue_len", len(ch)), logx.Int("queue_cap", cap(ch)))
		}
	}
}

// reload parses, validates, commits and publishes the file on disk.
// Failures leave the previously committed config in place.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := contentHash(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path))
}

// Watch follows the config file until ctx is done. Edits are debounced
// (editors write in bursts, often via rename), and a watcher that breaks
// is recreated with jittered backoff rather than giving up.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	base := filepath.Base(m.path)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := watchBackoffBase

	var debMu sync.Mutex
	var deb *time.Timer
	scheduleReload := func() {
		debMu.Lock()
		defer debMu.Unlock()
		if deb != nil {
			deb.Stop()
		}
		m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
		deb = time.AfterFunc(reloadDebounce, func() { m.reload(ctx) })
	}

	pause := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < watchBackoffMax {
			backoff *= 2
			if backoff > watchBackoffMax {
				backoff = watchBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !pause() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !pause() {
				return nil
			}
			continue
		}

		backoff = watchBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", base))

		if !m.watchLoop(ctx, w, base, scheduleReload) {
			_ = w.Close()
			return nil
		}
		_ = w.Close()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		if !pause() {
			return nil
		}
	}
}

// watchLoop consumes watcher events until the watcher breaks (returns
// true, caller restarts it) or ctx is done (returns false).
func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, base string, scheduleReload func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			// Compare basenames: editors and OSes disagree about
			// absolute vs relative event paths.
			if !strings.EqualFold(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				scheduleReload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			// Overflow means missed events; reload once rather than
			// matching a version-specific error constant.
			if strings.Contains(msg, "overflow") {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				scheduleReload()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(msg, "closed") {
				return true
			}
		}
	}
}
