// Package tasks implements the asynchronous ingestion pipeline. This file
// exposes Prometheus instrumentation for the task runner: terminal outcome
// counts, retry counts, in-flight work, and end-to-end task duration. All
// collectors are safe for concurrent use and keep label cardinality bounded
// (the only label is the terminal status).
package tasks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// taskOutcomes counts tasks reaching a terminal state, by status.
	taskOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_tasks_total",
			Help: "Total number of ingestion tasks that reached a terminal state.",
		},
		[]string{"status"},
	)

	// taskRetries counts individual retry attempts across all tasks.
	taskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestion_task_retries_total",
			Help: "Total number of ingestion task retry attempts.",
		},
	)

	// tasksInflight gauges tasks currently executing on a worker.
	tasksInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestion_tasks_inflight",
			Help: "Current number of ingestion tasks being executed.",
		},
	)

	// taskDuration records end-to-end task execution time, including
	// backoff delays between attempts.
	taskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingestion_task_duration_seconds",
			Help:    "Duration of ingestion task execution in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(taskOutcomes, taskRetries, tasksInflight, taskDuration)
}

// observeOutcome records one terminal task outcome.
func observeOutcome(status Status, started time.Time) {
	taskOutcomes.WithLabelValues(string(status)).Inc()
	taskDuration.Observe(time.Since(started).Seconds())
}
