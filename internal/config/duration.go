package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string from a config field.
// Empty means unset (0); negative values are rejected. path names the
// field in error messages ("scheduler.default_timeout").
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: cannot parse %q as a duration: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for
// unset or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
