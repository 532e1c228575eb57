// Package metrics exposes the pipeline's Prometheus registry.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry is shared by cmd/worker, cmd/dispatcher and cmd/api.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		JobsEnqueuedTotal, JobsLeasedTotal, JobsCompletedTotal, JobsFailedTotal,
		JobDurationSeconds, JobsReapedTotal,
		ImagesByStatus, DetectionsTotal,
		LLMTokensTotal, RateLimitWaitSeconds,
		WorkerBusy,
	)
}

// JobsEnqueuedTotal counts jobs created by the Dispatcher, by job_type.
var JobsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_jobs_enqueued_total",
		Help: "Jobs enqueued by the dispatcher, by job_type.",
	},
	[]string{"job_type"},
)

// JobsLeasedTotal counts successful lease acquisitions, by job_type.
var JobsLeasedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_jobs_leased_total",
		Help: "Jobs leased by a worker, by job_type.",
	},
	[]string{"job_type"},
)

// JobsCompletedTotal counts jobs that reached status=completed.
var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_jobs_completed_total",
		Help: "Jobs completed, by job_type.",
	},
	[]string{"job_type"},
)

// JobsFailedTotal counts jobs that reached status=failed (retries exhausted).
var JobsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_jobs_failed_total",
		Help: "Jobs permanently failed, by job_type.",
	},
	[]string{"job_type"},
)

// JobsReapedTotal counts jobs reclaimed by the dispatcher after lease
// expiry. The dispatcher reaps all job types at once and records the
// count under job_type="all".
var JobsReapedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_jobs_reaped_total",
		Help: "Jobs reclaimed after their lease expired (job_type=\"all\").",
	},
	[]string{"job_type"},
)

// JobDurationSeconds measures handler execution time, by job_type.
var JobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "barcode_job_duration_seconds",
		Help:    "Stage handler execution time, by job_type.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"job_type"},
)

// ImagesByStatus is a point-in-time gauge refreshed by the Stats Aggregator.
var ImagesByStatus = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "barcode_images_by_status",
		Help: "Current image count by status.",
	},
	[]string{"status"},
)

// DetectionsTotal counts Detection records written, by source.
var DetectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_detections_total",
		Help: "Detections persisted, by source.",
	},
	[]string{"source"},
)

// LLMTokensTotal sums Gemini token usage.
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barcode_llm_tokens_total",
		Help: "Gemini token usage for fallback decoding.",
	},
	[]string{"direction"}, // prompt | completion
)

// RateLimitWaitSeconds measures time spent blocked on the Gemini limiter.
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "barcode_rate_limit_wait_seconds",
		Help:    "Time spent waiting on the LLM rate limiter.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// WorkerBusy is the count of handler executions currently in flight, by worker_id.
var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "barcode_worker_busy",
		Help: "In-flight handler executions per worker.",
	},
	[]string{"worker_id"},
)

// WritePrometheus writes the text exposition format to w.
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
