package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is the normalized form of a user-supplied schedule string.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron", "duration" or "hhmm" (for diagnostics)
}

// ParseSchedule accepts the schedule shapes plugin configs use:
//
//   - Cron specs: "*/5 * * * *", "@hourly", "@every 55m", optionally
//     prefixed "cron:<spec>"
//   - Go durations: "55m", "2h30m", optionally prefixed "interval:<dur>"
//   - HH:MM shorthand for an interval: "01:30" = every 90 minutes
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("empty schedule")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		return ParsedSpec{Kind: SpecCron, Cron: strings.TrimSpace(rest), Source: "cron"}, nil
	}
	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q", raw)
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	// Cron descriptors and multi-field specs.
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " *") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	// HH:MM shorthand.
	if h, m, err := parseHHMM(s); err == nil {
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval %q must be > 0", raw)
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}

	// Plain Go duration.
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval %q must be > 0", raw)
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	return ParsedSpec{}, fmt.Errorf("unrecognized schedule %q", raw)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
