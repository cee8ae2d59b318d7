//go:build !linux

package journal

import (
	"errors"

	"watchdog/internal/eventlog"
)

var errUnsupported = errors.New("journal: unsupported OS (linux only)")

func journalSupported() bool { return false }

func journalPresent() bool { return false }

func sendToJournal(eventlog.Event) error { return errUnsupported }
