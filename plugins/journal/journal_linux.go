//go:build linux

package journal

import (
	"strconv"

	sdjournal "github.com/coreos/go-systemd/v22/journal"

	"watchdog/internal/eventlog"
)

func journalSupported() bool { return true }

// journalPresent reports whether the journald socket is reachable.
func journalPresent() bool { return sdjournal.Enabled() }

// sendToJournal writes one event with structured journal fields.
// Field names must be uppercase ASCII per the journal protocol.
func sendToJournal(ev eventlog.Event) error {
	vars := map[string]string{
		"WATCHDOG_CHANNEL": ev.Channel,
		"WATCHDOG_ID":      strconv.FormatInt(ev.ID, 10),
	}
	if ev.Location != "" {
		vars["WATCHDOG_LOCATION"] = ev.Location
	}
	if ev.UID != 0 {
		vars["WATCHDOG_UID"] = strconv.FormatInt(ev.UID, 10)
	}
	return sdjournal.Send(ev.Message, priorityFor(ev.Severity), vars)
}

func priorityFor(s eventlog.Severity) sdjournal.Priority {
	switch s {
	case eventlog.SeverityEmergency:
		return sdjournal.PriEmerg
	case eventlog.SeverityAlert:
		return sdjournal.PriAlert
	case eventlog.SeverityCritical:
		return sdjournal.PriCrit
	case eventlog.SeverityError:
		return sdjournal.PriErr
	case eventlog.SeverityWarning:
		return sdjournal.PriWarning
	case eventlog.SeverityNotice:
		return sdjournal.PriNotice
	case eventlog.SeverityDebug:
		return sdjournal.PriDebug
	default:
		return sdjournal.PriInfo
	}
}
