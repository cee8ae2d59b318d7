package eventlog

import (
	"strings"
	"time"
)

// Severity follows the RFC 5424 level order: lower value means more severe.
type Severity int

const (
	SeverityEmergency Severity = iota
	SeverityAlert
	SeverityCritical
	SeverityError
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

var severityNames = [...]string{
	"emergency", "alert", "critical", "error",
	"warning", "notice", "info", "debug",
}

func (s Severity) String() string {
	if s < SeverityEmergency || s > SeverityDebug {
		return "unknown"
	}
	return severityNames[s]
}

// Valid reports whether s is one of the defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityEmergency && s <= SeverityDebug
}

// ParseSeverity maps a level name to a Severity.
// Unknown names fall back to SeverityInfo.
func ParseSeverity(name string) Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "emergency", "emerg":
		return SeverityEmergency
	case "alert":
		return SeverityAlert
	case "critical", "crit":
		return SeverityCritical
	case "error", "err":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	case "notice":
		return SeverityNotice
	case "debug":
		return SeverityDebug
	default:
		return SeverityInfo
	}
}

// Event is one recorded log entry.
//
// ID is assigned by the store on insert and increases monotonically with
// insertion order. Retention reasons about ID only; every other field is
// opaque payload.
type Event struct {
	ID        int64          `json:"id"`
	Channel   string         `json:"channel"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Variables map[string]any `json:"variables,omitempty"`
	Link      string         `json:"link,omitempty"`
	Location  string         `json:"location,omitempty"`
	Referer   string         `json:"referer,omitempty"`
	Hostname  string         `json:"hostname,omitempty"`
	UID       int64          `json:"uid,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
