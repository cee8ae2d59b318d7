package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"watchdog/internal/eventlog"
	"watchdog/internal/storage"
)

func seed(t *testing.T, st storage.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := st.Append(context.Background(), eventlog.Event{
			Channel:  "test",
			Severity: eventlog.SeverityInfo,
			Message:  fmt.Sprintf("event %d", i+1),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func ids(t *testing.T, st storage.Store) []int64 {
	t.Helper()
	evs, err := st.Recent(context.Background(), 1<<20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	// Recent returns newest first; flip to ascending for readable asserts.
	out := make([]int64, len(evs))
	for i, e := range evs {
		out[len(evs)-1-i] = e.ID
	}
	return out
}

func TestEnforceTrimsToNewest(t *testing.T) {
	// Store has ids [1..50], limit 10: only [41..50] survive.
	st := storage.NewMemory()
	seed(t, st, 50)

	removed, err := Enforce(context.Background(), st, 10)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 40 {
		t.Fatalf("removed = %d, want 40", removed)
	}

	got := ids(t, st)
	if len(got) != 10 {
		t.Fatalf("kept %d entries, want 10", len(got))
	}
	for i, id := range got {
		if want := int64(41 + i); id != want {
			t.Fatalf("kept[%d] = %d, want %d", i, id, want)
		}
	}
}

func TestEnforceUnderLimitIsNoop(t *testing.T) {
	st := storage.NewMemory()
	seed(t, st, 5)

	removed, err := Enforce(context.Background(), st, 10)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if got := ids(t, st); len(got) != 5 {
		t.Fatalf("kept %d entries, want 5", len(got))
	}
}

func TestEnforceExactLimitBoundary(t *testing.T) {
	// n == k must delete nothing.
	st := storage.NewMemory()
	seed(t, st, 10)

	removed, err := Enforce(context.Background(), st, 10)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if got := ids(t, st); len(got) != 10 {
		t.Fatalf("kept %d entries, want 10", len(got))
	}
}

func TestEnforceEmptyStore(t *testing.T) {
	st := storage.NewMemory()

	removed, err := Enforce(context.Background(), st, 100)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestEnforceZeroLimitKeepsEverything(t *testing.T) {
	st := storage.NewMemory()
	seed(t, st, 20)

	removed, err := Enforce(context.Background(), st, 0)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if got := ids(t, st); len(got) != 20 {
		t.Fatalf("kept %d entries, want 20", len(got))
	}
}

func TestEnforceIsIdempotent(t *testing.T) {
	st := storage.NewMemory()
	seed(t, st, 50)

	if _, err := Enforce(context.Background(), st, 10); err != nil {
		t.Fatalf("first enforce: %v", err)
	}
	first := ids(t, st)

	removed, err := Enforce(context.Background(), st, 10)
	if err != nil {
		t.Fatalf("second enforce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second pass removed = %d, want 0", removed)
	}
	second := ids(t, st)
	if len(first) != len(second) {
		t.Fatalf("store changed between passes: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("store changed between passes: %v vs %v", first, second)
		}
	}
}

func TestEnforceMonotonicSafety(t *testing.T) {
	for _, k := range []int{1, 3, 7, 25, 50, 60} {
		st := storage.NewMemory()
		seed(t, st, 50)

		if _, err := Enforce(context.Background(), st, k); err != nil {
			t.Fatalf("enforce(k=%d): %v", k, err)
		}

		got := ids(t, st)
		want := 50
		if k < want {
			want = k
		}
		if len(got) != want {
			t.Fatalf("k=%d: kept %d entries, want %d", k, len(got), want)
		}
		// Survivors must be exactly the largest ids, contiguous at the top.
		for i, id := range got {
			if exp := int64(50 - want + 1 + i); id != exp {
				t.Fatalf("k=%d: kept[%d] = %d, want %d", k, i, id, exp)
			}
		}
	}
}

type failingStore struct {
	rankErr   error
	deleteErr error
}

func (f *failingStore) NthNewestID(ctx context.Context, n int) (int64, bool, error) {
	if f.rankErr != nil {
		return 0, false, f.rankErr
	}
	return 42, true, nil
}

func (f *failingStore) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	return 0, f.deleteErr
}

func TestEnforcePropagatesStoreErrors(t *testing.T) {
	rankFail := &failingStore{rankErr: storage.ErrUnavailable}
	if _, err := Enforce(context.Background(), rankFail, 10); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("rank error not propagated: %v", err)
	}

	delFail := &failingStore{deleteErr: storage.ErrUnavailable}
	if _, err := Enforce(context.Background(), delFail, 10); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("delete error not propagated: %v", err)
	}
}
