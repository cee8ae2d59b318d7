// Package scheduler runs registered maintenance tasks on cron or interval
// schedules.
//
// Tasks are executed by a small worker pool with per-task timeouts,
// overlap control (skip-if-running by default) and bounded retry with
// exponential backoff. A bounded run history feeds the admin surface.
package scheduler
