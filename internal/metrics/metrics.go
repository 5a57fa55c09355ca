// Package metrics exposes the scheduler's prometheus instrumentation,
// served by the HTTP API under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_scans_total",
		Help: "Total number of scheduler scan passes",
	})
	JobsExaminedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_jobs_examined_total",
		Help: "Total number of job definitions examined across scans",
	})
	JobsLaunchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_jobs_launched_total",
		Help: "Total number of job runs dispatched",
	})
	JobsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_jobs_skipped_total",
		Help: "Total number of jobs skipped during scans (not due, already running, already fired this hour, bad spec)",
	})
	RunsInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "researchd_runs_in_progress",
		Help: "Number of job runs currently executing",
	})
	RunsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_runs_completed_total",
		Help: "Total number of job runs that succeeded",
	})
	RunsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "researchd_runs_failed_total",
		Help: "Total number of job runs that failed",
	})
	RunDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "researchd_run_duration_seconds",
		Help:    "Wall-clock duration of finished job runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
	})
)

func init() {
	prometheus.MustRegister(
		ScansTotal, JobsExaminedTotal, JobsLaunchedTotal, JobsSkippedTotal,
		RunsInProgress, RunsCompletedTotal, RunsFailedTotal, RunDurationSeconds,
	)
}
