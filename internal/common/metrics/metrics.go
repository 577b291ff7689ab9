// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Dispatch runs by outcome (ok, partial, failed)",
		},
		[]string{"outcome"},
	)

	DispatchNotificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_created_total",
			Help: "Notifications persisted by dispatch runs",
		},
	)

	DispatchDonorsFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_donors_found",
			Help:    "Candidates found per dispatch run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Dispatch tasks waiting for a scheduler worker",
		},
	)

	ResponsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donor_responses_recorded_total",
			Help: "Donor responses merged into request ledgers",
		},
		[]string{"reaction", "result"}, // result: created, updated
	)

	NotificationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_transitions_total",
			Help: "Notification lifecycle events by resulting status",
		},
		[]string{"event", "status"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Out-of-app channel deliveries",
		},
		[]string{"channel", "outcome"},
	)
)
