package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config controls the scheduler service.
type Config struct {
	Enabled bool
	// Workers is the task pool size (default 2).
	Workers        int
	DefaultTimeout time.Duration
	// HistorySize bounds the kept run history (default 200).
	HistorySize int
	// Timezone is an IANA name ("Europe/Berlin"); empty means local.
	Timezone string
	// RetryMax is the default retry count for tasks that don't set one.
	RetryMax int
}

type OverlapPolicy int

const (
	// OverlapSkipIfRunning drops a tick while the previous run of the
	// same task is still executing.
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

// RetryPolicy shapes the backoff between failed attempts.
type RetryPolicy struct {
	Max      int
	Base     time.Duration
	MaxDelay time.Duration
	// Jitter is the relative spread applied to each delay (0.2 = ±20%).
	Jitter float64
}

func (r RetryPolicy) withDefaults(cfg Config) RetryPolicy {
	if r.Max <= 0 {
		r.Max = cfg.RetryMax
	}
	if r.Max <= 0 {
		r.Max = 3
	}
	if r.Base <= 0 {
		r.Base = 500 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 15 * time.Second
	}
	if r.Jitter <= 0 {
		r.Jitter = 0.2
	}
	return r
}

type TaskOptions struct {
	Overlap OverlapPolicy
	Retry   RetryPolicy
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	o.Retry = o.Retry.withDefaults(cfg)
	return o
}

// runState is shared between cron invocations of one schedule so the
// overlap policy can see a run in flight.
type runState struct {
	mu      sync.Mutex
	running bool
}

// HistoryItem is one finished task run.
type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type task struct {
	id      string
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     TaskOptions
	state   *runState
}

type scheduleDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TaskOptions
	state   *runState
}

// ScheduleInfo is the read-only view of one registered schedule.
type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

// Snapshot is a point-in-time view of the scheduler for the admin surface.
type Snapshot struct {
	Enabled   bool
	Timezone  string
	Workers   int
	QueueLen  int
	Schedules []ScheduleInfo
	History   []HistoryItem
}
