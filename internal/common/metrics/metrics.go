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

	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendation responses served, by tier and source (cache or computed)",
		},
		[]string{"tier", "source"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Time spent computing a recommendation set",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"tier"},
	)

	TierSelected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_tier_selected_total",
			Help: "Tier chosen by the resource-aware selector",
		},
		[]string{"tier"},
	)

	StageDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_stage_degraded_total",
			Help: "Enrichment stages that failed and fell back to the prior result",
		},
		[]string{"stage"},
	)

	RecordPersistFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_record_persist_failed_total",
			Help: "Recommendation audit records that could not be stored",
		},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by store, operation and result",
		},
		[]string{"store", "op", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SystemResourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_resource_usage_percent",
			Help: "Last sampled resource usage percentage",
		},
		[]string{"resource"},
	)
)
