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

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_predictions_total",
			Help: "Predictions produced, by caller and risk level",
		},
		[]string{"source", "risk_level"},
	)

	EncodingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_encoding_failures_total",
			Help: "Rows rejected by the feature encoder, by error kind",
		},
		[]string{"kind"},
	)

	EncodingWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_encoding_warnings_total",
			Help: "Non-fatal encoder substitutions, by kind",
		},
		[]string{"kind"},
	)

	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_scoring_duration_seconds",
			Help:    "Classifier call latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"backend"},
	)

	ScoringErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_scoring_errors_total",
			Help: "Classifier call failures",
		},
		[]string{"backend"},
	)

	BatchRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_batch_rows_total",
			Help: "Batch rows by outcome (scored, failed, excluded)",
		},
		[]string{"outcome"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_sink_failures_total",
			Help: "Failed writes to prediction sinks (store, index, alert)",
		},
		[]string{"sink"},
	)
)
