// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for PipelineRequests and ProviderAttempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Generation requests by task type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"task_type", "stage"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Failed generation requests by stage and error code",
		},
		[]string{"task_type", "stage", "error_code"},
	)

	PipelineSchemaDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_schema_degraded_total",
			Help: "Model outputs that needed repair to satisfy the schema",
		},
		[]string{"task_type"},
	)

	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_provider_attempts_total",
			Help: "Provider attempts made by failover chains",
		},
		[]string{"component", "provider", "outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Advisory notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	ResultsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "results_persisted_total",
			Help: "Generation results written to the result store",
		},
		[]string{"backend", "outcome"},
	)
)
