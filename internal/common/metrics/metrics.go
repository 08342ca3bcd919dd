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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Preset catalog and resolver collectors.
var (
	IndexBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preset_index_builds_total",
			Help: "Combination index builds by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	IndexRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preset_index_records",
			Help: "Records in the currently published index",
		},
		[]string{"tool", "locale"},
	)

	ExtractionSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preset_extraction_skipped_total",
			Help: "Raw template records dropped during extraction",
		},
		[]string{"tool", "reason"},
	)

	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preset_resolutions_total",
			Help: "Selection resolutions by tool and match status",
		},
		[]string{"tool", "status"},
	)

	AccessDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preset_access_denials_total",
			Help: "Access gate denials by reason",
		},
		[]string{"reason"},
	)

	TemplateFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "template_fetch_duration_seconds",
			Help:    "Template store fetch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "outcome"},
	)

	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_requests_total",
			Help: "Live generation requests by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)
)
