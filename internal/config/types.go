package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Admin     AdminConfig     `json:"admin,omitempty"`

	Plugins map[string]PluginConfigRaw `json:"plugins"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Events  LoggingEvents `json:"events"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingEvents mirrors host log records into the event log.
type LoggingEvents struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the maintenance scheduler service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers"`
	// DefaultTimeout is a Go duration string (e.g. "10s", "1m").
	// Use "0s" to disable a global default timeout.
	DefaultTimeout string `json:"default_timeout"`
	HistorySize    int    `json:"history_size"`
	Timezone       string `json:"timezone,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig controls the event log persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./watchdog.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AdminConfig controls the optional admin/observability HTTP server.
//
// Prefer binding to localhost; there is no auth on this listener.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	// Pprof additionally exposes /debug/pprof/* on the admin listener.
	Pprof bool `json:"pprof,omitempty"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields to ensure removed legacy keys
// are caught early during config reload.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}
