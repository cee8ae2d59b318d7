package eventlog

import (
	"context"
	"time"

	logx "watchdog/pkg/logx"
)

// Bridge adapts the logx event sink to the recorder, so host log records
// at or above the configured level land in the event log alongside
// application events. Rate limiting happens upstream in logx.
type Bridge struct {
	rec     *Recorder
	channel string
	timeout time.Duration
}

// NewBridge builds a sink recording under the given channel name.
func NewBridge(rec *Recorder, channel string) *Bridge {
	if channel == "" {
		channel = "host"
	}
	return &Bridge{rec: rec, channel: channel, timeout: 2 * time.Second}
}

// Consume implements logx.Sink.
func (b *Bridge) Consume(level logx.Level, msg string, fields map[string]any) {
	if b == nil || b.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	_, _ = b.rec.Record(ctx, Event{
		Channel:   b.channel,
		Severity:  severityFromLevel(level),
		Message:   msg,
		Variables: fields,
	})
}

func severityFromLevel(level logx.Level) Severity {
	switch {
	case level >= logx.LevelError:
		return SeverityError
	case level >= logx.LevelWarn:
		return SeverityWarning
	case level >= logx.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}
