package eventlog

import (
	"context"
	"errors"
	"testing"

	logx "watchdog/pkg/logx"
)

type fakeAppender struct {
	nextID int64
	events []Event
	err    error
}

func (f *fakeAppender) Append(ctx context.Context, e Event) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	e.ID = f.nextID
	f.events = append(f.events, e)
	return e.ID, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	t.Parallel()
	app := &fakeAppender{}
	rec := NewRecorder(app, logx.Nop(), nil)

	id, err := rec.Record(context.Background(), Event{Message: "boot"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}
	got := app.events[0]
	if got.Channel != "general" {
		t.Fatalf("channel = %q, want general", got.Channel)
	}
	if got.Severity != SeverityInfo {
		t.Fatalf("severity = %v, want info", got.Severity)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp not filled")
	}
}

func TestRecordPreservesExplicitFields(t *testing.T) {
	t.Parallel()
	app := &fakeAppender{}
	rec := NewRecorder(app, logx.Nop(), nil)

	_, err := rec.Record(context.Background(), Event{
		Channel:  "cron",
		Severity: SeverityAlert,
		Message:  "disk full",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	got := app.events[0]
	if got.Channel != "cron" || got.Severity != SeverityAlert {
		t.Fatalf("explicit fields overwritten: %+v", got)
	}
}

func TestRecordPropagatesAppendError(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk detached")
	rec := NewRecorder(&fakeAppender{err: boom}, logx.Nop(), nil)

	if _, err := rec.Record(context.Background(), Event{Message: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestTapsSeeAssignedID(t *testing.T) {
	t.Parallel()
	app := &fakeAppender{}
	rec := NewRecorder(app, logx.Nop(), nil)

	var seen []Event
	rec.Tap(func(e Event) { seen = append(seen, e) })

	if _, err := rec.Record(context.Background(), Event{Message: "one"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(seen) != 1 || seen[0].ID != 1 {
		t.Fatalf("tap saw %+v, want one event with id 1", seen)
	}

	// A failed append must not reach taps.
	app.err = errors.New("down")
	_, _ = rec.Record(context.Background(), Event{Message: "two"})
	if len(seen) != 1 {
		t.Fatalf("tap saw %d events after failed append, want 1", len(seen))
	}
}

func TestNilRecorderAndMissingStore(t *testing.T) {
	t.Parallel()
	var nilRec *Recorder
	if _, err := nilRec.Record(context.Background(), Event{Message: "x"}); err != nil {
		t.Fatalf("nil recorder Record: %v", err)
	}
	if err := nilRec.MustStore(); !errors.Is(err, ErrNoStore) {
		t.Fatalf("MustStore = %v, want ErrNoStore", err)
	}
}

func TestBridgeMapsLevels(t *testing.T) {
	t.Parallel()
	app := &fakeAppender{}
	rec := NewRecorder(app, logx.Nop(), nil)
	b := NewBridge(rec, "")

	b.Consume(logx.LevelError, "exploded", map[string]any{"where": "worker"})
	b.Consume(logx.LevelWarn, "flaky", nil)
	b.Consume(logx.LevelInfo, "fine", nil)

	if len(app.events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(app.events))
	}
	if app.events[0].Channel != "host" {
		t.Fatalf("default channel = %q, want host", app.events[0].Channel)
	}
	want := []Severity{SeverityError, SeverityWarning, SeverityInfo}
	for i, w := range want {
		if app.events[i].Severity != w {
			t.Fatalf("event %d severity = %v, want %v", i, app.events[i].Severity, w)
		}
	}
	if app.events[0].Variables["where"] != "worker" {
		t.Fatalf("fields not carried: %+v", app.events[0].Variables)
	}
}
