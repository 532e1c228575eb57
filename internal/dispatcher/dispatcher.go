// Package dispatcher seeds Jobs from Image status and reaps expired
// leases (spec.md §4.4, §4.3, §4.5). Grounded directly on
// _examples/original_source/workers/dispatcher/main.py's JobDispatcher:
// dispatch_preprocess_jobs/dispatch_primary_decode_jobs/
// dispatch_fallback_jobs map one-to-one onto the three seed methods
// below, and get_stats/run_dispatch_cycle onto Stats/RunCycle. One
// divergence from that source: spec.md §4.5's fourth eligibility rule
// re-seeds decode_fallback jobs for images in status=failed, which
// folds the original's separate, queue-bypassing retry poller
// (workers/decode_failed/main.py's process_failed_images) into the
// dispatch cycle — dispatchFailedRetryJobs implements that rule since
// the Python dispatcher has no equivalent method to ground it on. The
// teacher has no polling dispatcher to ground the loop shape on, so
// cmd/dispatcher's run loop follows this package's RunCycle/reap
// sequence directly rather than a teacher scheduler.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/pkg/log"
	"barcode-pipeline/pkg/metrics"
)

// Dispatcher owns the seed-and-reap cycle that keeps the job queue fed
// from image status.
type Dispatcher struct {
	images    metadata.ImageRepository
	jobs      metadata.JobRepository
	batchSize int
	logger    *log.Logger
}

func New(images metadata.ImageRepository, jobs metadata.JobRepository, batchSize int, logger *log.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{images: images, jobs: jobs, batchSize: batchSize, logger: logger}
}

// CycleResult is the same shape as run_dispatch_cycle's returned dict.
type CycleResult struct {
	Preprocess     int `json:"preprocess"`
	PrimaryDecode  int `json:"primary_decode"`
	FallbackDecode int `json:"fallback_decode"`
	Reaped         int `json:"reaped"`
}

// RunCycle first reaps expired leases and then seeds every job type once,
// mirroring JobDispatcher.run_dispatch_cycle plus the reap step the Go
// queue exposes that dequeue's inline $or already covers defensively.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	reaped, err := d.jobs.ReapExpired(ctx, time.Now())
	if err != nil {
		return result, err
	}
	result.Reaped = reaped
	if reaped > 0 {
		metrics.JobsReapedTotal.WithLabelValues("all").Add(float64(reaped))
	}

	if result.Preprocess, err = d.dispatchPreprocessJobs(ctx); err != nil {
		return result, err
	}
	if result.PrimaryDecode, err = d.dispatchPrimaryDecodeJobs(ctx); err != nil {
		return result, err
	}
	if result.FallbackDecode, err = d.dispatchFallbackJobs(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// dispatchPreprocessJobs mirrors dispatch_preprocess_jobs: every pending
// image without an active preprocess job gets one.
func (d *Dispatcher) dispatchPreprocessJobs(ctx context.Context) (int, error) {
	pending, err := d.images.ListByStatus(ctx, model.StatusPending, d.batchSize)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, img := range pending {
		ok, err := d.enqueueIfAbsent(ctx, model.JobPreprocess, img)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		d.logger.Info("created preprocess jobs", "count", created)
	}
	return created, nil
}

// dispatchPrimaryDecodeJobs mirrors dispatch_primary_decode_jobs:
// preprocessed images that don't already need fallback get a primary
// decode job.
func (d *Dispatcher) dispatchPrimaryDecodeJobs(ctx context.Context) (int, error) {
	preprocessed, err := d.images.ListByStatus(ctx, model.StatusPreprocessed, d.batchSize)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, img := range preprocessed {
		if img.Processing.NeedsFallback {
			continue
		}
		ok, err := d.enqueueIfAbsent(ctx, model.JobDecodePrimary, img)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		d.logger.Info("created primary decode jobs", "count", created)
	}
	return created, nil
}

// FailedRetryDelay is the minimum age a failed image's last fallback
// attempt must have before the Dispatcher will re-seed it for another
// decode_fallback job, per spec.md §4.9's "at least 30 s" wording.
const FailedRetryDelay = 30 * time.Second

// MaxFallbackAttempts caps how many fallback decode attempts a failed
// image gets before the Dispatcher stops re-seeding it, per spec.md
// §4.9's "fallback_attempts < 3" guard.
const MaxFallbackAttempts = 3

// dispatchFallbackJobs mirrors dispatch_fallback_jobs's find_needing_fallback
// query (images still preprocessed/decoded_primary, flagged
// needs_fallback) plus spec.md §4.5's fourth rule, which folds the
// original's standalone failed-retry poller
// (_examples/original_source/workers/decode_failed/main.py) into the
// same job type: a failed image is re-seeded for decode_fallback once
// its last attempt is old enough and it hasn't exhausted its attempts.
func (d *Dispatcher) dispatchFallbackJobs(ctx context.Context) (int, error) {
	candidates, err := d.images.ListByStatus(ctx, model.StatusPreprocessed, d.batchSize)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, img := range candidates {
		if !img.Processing.NeedsFallback {
			continue
		}
		ok, err := d.enqueueIfAbsent(ctx, model.JobDecodeFallback, img)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	retried, err := d.dispatchFailedRetryJobs(ctx)
	if err != nil {
		return created, err
	}
	created += retried

	if created > 0 {
		d.logger.Info("created fallback decode jobs", "count", created)
	}
	return created, nil
}

// dispatchFailedRetryJobs implements spec.md §4.5's fourth eligibility
// rule directly, since the original has no dispatcher-side analogue for
// it (decode_failed/main.py polls Image status on its own, bypassing
// the job queue entirely). The guard and job type are unchanged from
// decode_fallback: only the source status and the age/attempt-count
// guard differ.
func (d *Dispatcher) dispatchFailedRetryJobs(ctx context.Context) (int, error) {
	failed, err := d.images.ListByStatus(ctx, model.StatusFailed, d.batchSize)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	created := 0
	for _, img := range failed {
		if img.FallbackAttemptCount() >= MaxFallbackAttempts {
			continue
		}
		if now.Sub(img.LastFallbackAttemptAt()) <= FailedRetryDelay {
			continue
		}
		ok, err := d.enqueueIfAbsent(ctx, model.JobDecodeFallback, img)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (d *Dispatcher) enqueueIfAbsent(ctx context.Context, jobType model.JobType, img *model.Image) (bool, error) {
	exists, err := d.jobs.ExistsActive(ctx, jobType, img.ImageID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	now := time.Now()
	job := &model.Job{
		JobID:        uuid.NewString(),
		JobType:      jobType,
		ImageID:      img.ImageID,
		BatchID:      img.BatchID,
		Status:       model.JobPending,
		MaxRetries:   3,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		return false, err
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(string(jobType)).Inc()
	return true, nil
}

// Stats mirrors JobDispatcher.get_stats's three sections.
type Stats struct {
	Images      map[model.ImageStatus]int64 `json:"images"`
	PendingWork PendingWork                 `json:"pending_work"`
	Timestamp   time.Time                   `json:"timestamp"`
}

// PendingWork mirrors get_stats's pending_work dict.
type PendingWork struct {
	PendingPreprocess     int `json:"pending_preprocess"`
	PendingPrimaryDecode  int `json:"pending_primary_decode"`
	PendingFallbackDecode int `json:"pending_fallback_decode"`
}

func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error

	if stats.Images, err = d.images.CountByStatus(ctx); err != nil {
		return stats, err
	}

	pending, err := d.images.ListByStatus(ctx, model.StatusPending, 10000)
	if err != nil {
		return stats, err
	}
	preprocessed, err := d.images.ListByStatus(ctx, model.StatusPreprocessed, 10000)
	if err != nil {
		return stats, err
	}
	needsFallback := 0
	for _, img := range preprocessed {
		if img.Processing.NeedsFallback {
			needsFallback++
		}
	}
	failed, err := d.images.ListByStatus(ctx, model.StatusFailed, 10000)
	if err != nil {
		return stats, err
	}
	now := time.Now()
	for _, img := range failed {
		if img.FallbackAttemptCount() >= MaxFallbackAttempts {
			continue
		}
		if now.Sub(img.LastFallbackAttemptAt()) <= FailedRetryDelay {
			continue
		}
		needsFallback++
	}

	stats.PendingWork = PendingWork{
		PendingPreprocess:     len(pending),
		PendingPrimaryDecode:  len(preprocessed),
		PendingFallbackDecode: needsFallback,
	}
	stats.Timestamp = time.Now().UTC()

	for status, count := range stats.Images {
		metrics.ImagesByStatus.WithLabelValues(string(status)).Set(float64(count))
	}

	return stats, nil
}
