// Package retention bounds the size of the event log.
//
// A pass keeps the rowLimit most recent entries, where "most recent" is
// defined strictly by descending id order. Timestamps are never consulted,
// so trimming stays correct under clock skew or duplicated timestamps.
package retention

import (
	"context"
	"fmt"
)

// Store is the slice of the event store the enforcer needs: a ranked
// lookup by descending id and a bulk predicate delete. The delete is
// expected to be a single atomic statement at the store level.
type Store interface {
	NthNewestID(ctx context.Context, n int) (id int64, ok bool, err error)
	DeleteBefore(ctx context.Context, threshold int64) (int64, error)
}

// Enforce trims store down to at most rowLimit entries and reports how
// many entries were removed.
//
// rowLimit == 0 means unlimited retention: nothing is deleted. When the
// store holds rowLimit entries or fewer, the pass is a no-op. Running
// Enforce twice with no intervening inserts deletes nothing the second
// time.
//
// Errors from the store abandon the pass; there is no retry here, the
// next maintenance tick retries naturally.
func Enforce(ctx context.Context, store Store, rowLimit int) (int64, error) {
	if rowLimit <= 0 {
		return 0, nil
	}

	// The oldest entry among the rowLimit most recent. If fewer than
	// rowLimit entries exist there is nothing to trim.
	threshold, ok, err := store.NthNewestID(ctx, rowLimit)
	if err != nil {
		return 0, fmt.Errorf("rank lookup: %w", err)
	}
	if !ok {
		return 0, nil
	}

	// Entries with id == threshold are retained; only strictly older
	// ones go. With exactly rowLimit entries the threshold is the oldest
	// entry itself, so this deletes nothing.
	removed, err := store.DeleteBefore(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete below %d: %w", threshold, err)
	}
	return removed, nil
}
