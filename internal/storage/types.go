package storage

import (
	"context"
	"errors"
	"time"

	"watchdog/internal/eventlog"
)

var (
	// ErrDisabled is returned when storage is configured off.
	ErrDisabled = errors.New("storage disabled")

	// ErrUnavailable wraps store read/write failures (connectivity loss,
	// permission errors, closed handles). Callers treat it as transient:
	// the pass is abandoned and the next tick retries naturally.
	ErrUnavailable = errors.New("store unavailable")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file":   JSONL journal
//   - "memory": volatile in-process store
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the recorder, the retention
// enforcer and the admin surface.
//
// "Newest" is always defined by descending id, never by timestamp.
type Store interface {
	// Append inserts one event and returns its store-assigned id.
	// Ids increase monotonically with insertion order.
	Append(ctx context.Context, e eventlog.Event) (int64, error)

	// NthNewestID returns the id of the n-th entry when ordered by id
	// descending (n >= 1). ok is false when fewer than n entries exist.
	NthNewestID(ctx context.Context, n int) (id int64, ok bool, err error)

	// DeleteBefore removes every entry with id < threshold in a single
	// statement and reports the number of rows removed.
	DeleteBefore(ctx context.Context, threshold int64) (int64, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]eventlog.Event, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	Close() error
}
