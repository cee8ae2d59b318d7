// Package metrics exposes Prometheus collectors for the event log host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors shared across services.
type Metrics struct {
	// Event recording
	eventsRecorded *prometheus.CounterVec
	recordFailures prometheus.Counter

	// Retention enforcement
	retentionPasses  *prometheus.CounterVec
	retentionDeleted prometheus.Counter
	retentionLatency prometheus.Histogram

	// Scheduler
	taskRuns *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg.
// Pass prometheus.NewRegistry() in tests to avoid global collisions.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_events_recorded_total",
				Help: "Total number of events appended to the log store",
			},
			[]string{"channel", "severity"},
		),
		recordFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "watchdog_event_record_failures_total",
				Help: "Total number of event appends rejected by the store",
			},
		),
		retentionPasses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_retention_passes_total",
				Help: "Total number of retention enforcement passes by result",
			},
			[]string{"result"},
		),
		retentionDeleted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "watchdog_retention_deleted_rows_total",
				Help: "Total number of log entries removed by retention",
			},
		),
		retentionLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "watchdog_retention_pass_duration_seconds",
				Help:    "Duration of retention enforcement passes",
				Buckets: prometheus.DefBuckets,
			},
		),
		taskRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_scheduler_task_runs_total",
				Help: "Total number of scheduled task executions by outcome",
			},
			[]string{"task", "outcome"},
		),
	}
}

func (m *Metrics) EventRecorded(channel, severity string) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(channel, severity).Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *Metrics) RetentionPass(result string, deleted int64, seconds float64) {
	if m == nil {
		return
	}
	m.retentionPasses.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.retentionDeleted.Add(float64(deleted))
	}
	m.retentionLatency.Observe(seconds)
}

func (m *Metrics) TaskRun(task, outcome string) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, outcome).Inc()
}
