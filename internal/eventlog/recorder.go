package eventlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"watchdog/internal/metrics"
	logx "watchdog/pkg/logx"
)

// Appender is the write half of the event store.
type Appender interface {
	Append(ctx context.Context, e Event) (int64, error)
}

// Recorder appends events to the log store and fans them out to
// registered taps (e.g. the journal forwarder).
//
// A zero-store Recorder silently drops events; that keeps callers free
// of nil checks when storage is disabled.
type Recorder struct {
	store Appender
	log   logx.Logger
	met   *metrics.Metrics

	mu   sync.RWMutex
	taps []func(Event)
}

func NewRecorder(store Appender, log logx.Logger, met *metrics.Metrics) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, met: met}
}

// Tap registers fn to observe every successfully recorded event.
// Taps run synchronously on the recording goroutine and must be fast.
func (r *Recorder) Tap(fn func(Event)) {
	if r == nil || fn == nil {
		return
	}
	r.mu.Lock()
	r.taps = append(r.taps, fn)
	r.mu.Unlock()
}

// Record appends one event. The returned id is the store-assigned one.
func (r *Recorder) Record(ctx context.Context, e Event) (int64, error) {
	if r == nil || r.store == nil {
		return 0, nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if !e.Severity.Valid() {
		e.Severity = SeverityInfo
	}
	if e.Channel == "" {
		e.Channel = "general"
	}

	id, err := r.store.Append(ctx, e)
	if err != nil {
		r.met.RecordFailed()
		// Debug on purpose: record errors must not re-enter the log
		// sink that feeds this recorder.
		r.log.Debug("event append failed", logx.String("channel", e.Channel), logx.Err(err))
		return 0, err
	}
	e.ID = id
	r.met.EventRecorded(e.Channel, e.Severity.String())

	r.mu.RLock()
	taps := r.taps
	r.mu.RUnlock()
	for _, fn := range taps {
		fn(e)
	}
	return id, nil
}

// Helper shorthands used by plugins.

func (r *Recorder) Info(ctx context.Context, channel, msg string) error {
	_, err := r.Record(ctx, Event{Channel: channel, Severity: SeverityInfo, Message: msg})
	return err
}

func (r *Recorder) Warning(ctx context.Context, channel, msg string) error {
	_, err := r.Record(ctx, Event{Channel: channel, Severity: SeverityWarning, Message: msg})
	return err
}

func (r *Recorder) Error(ctx context.Context, channel, msg string) error {
	_, err := r.Record(ctx, Event{Channel: channel, Severity: SeverityError, Message: msg})
	return err
}

// ErrNoStore is returned by MustStore when storage is disabled.
var ErrNoStore = errors.New("event store not configured")

// MustStore reports whether the recorder has a backing store.
func (r *Recorder) MustStore() error {
	if r == nil || r.store == nil {
		return ErrNoStore
	}
	return nil
}
