package dblog

import (
	"fmt"
	"time"

	"watchdog/internal/config"
)

const (
	defaultRowLimit = 1000
	defaultSchedule = "@hourly"
	defaultTimeout  = time.Minute
)

// recommendedRowLimits mirrors the values offered in the settings UI.
// Any non-negative integer is accepted; these are just the common ones.
var recommendedRowLimits = []int{0, 100, 1000, 10000, 100000, 1000000}

// Config is the dblog plugin settings block.
//
// RowLimit bounds how many log entries are kept; 0 disables trimming
// entirely (unlimited retention). Schedule controls how often the
// retention pass runs.
type Config struct {
	// RowLimit is a pointer so "omitted" falls back to the default
	// instead of being read as an explicit 0 (= unlimited).
	RowLimit *int   `json:"row_limit,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	// Timeout is a Go duration string bounding one retention pass.
	Timeout string `json:"timeout,omitempty"`
}

// normalize validates cfg and fills defaults. It returns the effective
// row limit, schedule and pass timeout.
func (c Config) normalize() (rowLimit int, schedule string, timeout time.Duration, err error) {
	rowLimit = defaultRowLimit
	if c.RowLimit != nil {
		if *c.RowLimit < 0 {
			return 0, "", 0, fmt.Errorf("row_limit must be >= 0, got %d", *c.RowLimit)
		}
		rowLimit = *c.RowLimit
	}

	schedule = c.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	timeout, err = config.ParseDurationOrDefault("plugins.dblog.timeout", c.Timeout, defaultTimeout)
	if err != nil {
		return 0, "", 0, err
	}
	return rowLimit, schedule, timeout, nil
}

// isRecommended reports whether limit is one of the suggested values.
func isRecommended(limit int) bool {
	for _, v := range recommendedRowLimits {
		if v == limit {
			return true
		}
	}
	return false
}
