// Package metadata is the four-collection metadata store spec.md §1 names
// as an external collaborator: images, detections, jobs, products. Each
// collection gets its own repository interface, a MongoDB implementation
// (the binding SPEC_FULL.md §6 settles on) and an in-memory fake for
// tests, following
// _examples/fanjia1024-Aetheris/internal/storage/metadata/{interface.go,memory.go}.
// The conditional updates below port the claim/requeue pattern of
// _examples/fanjia1024-Aetheris/internal/agent/job/pg_store.go's
// ClaimNextPendingForWorker ("FOR UPDATE SKIP LOCKED") onto MongoDB's
// FindOneAndUpdate, since this pipeline has no Postgres schema to port
// literally.
package metadata

import (
	"context"
	"time"

	"barcode-pipeline/internal/model"
)

// ImageRepository stores Image documents.
type ImageRepository interface {
	Create(ctx context.Context, img *model.Image) error
	Get(ctx context.Context, imageID string) (*model.Image, error)
	// CompareAndSave persists img if and only if the stored document's
	// status still equals expected, guarding against a second handler
	// racing the same lease (spec.md §4.2). img.Status must already hold
	// the target status.
	CompareAndSave(ctx context.Context, img *model.Image, expected model.ImageStatus) error
	ListByStatus(ctx context.Context, status model.ImageStatus, limit int) ([]*model.Image, error)
	ListByBatch(ctx context.Context, batchID string) ([]*model.Image, error)
	CountByStatus(ctx context.Context) (map[model.ImageStatus]int64, error)
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// DetectionRepository stores Detection documents.
type DetectionRepository interface {
	Create(ctx context.Context, d *model.Detection) error
	Get(ctx context.Context, detectionID string) (*model.Detection, error)
	ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error)
	Save(ctx context.Context, d *model.Detection) error
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// JobRepository stores Job documents and implements the queue's atomic
// claim and reap operations (spec.md §4.3).
type JobRepository interface {
	Create(ctx context.Context, j *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// ExistsActive reports whether an active (pending or in_progress) job
	// of jobType already exists for imageID, the enqueue idempotency
	// guard spec.md §4.3 requires.
	ExistsActive(ctx context.Context, jobType model.JobType, imageID string) (bool, error)
	// ClaimNext atomically leases one eligible job of jobType: a pending
	// job with scheduled_for <= now, or an in_progress job whose
	// lock_until has passed. Higher priority wins, then the earliest
	// scheduled_for. Returns nil, nil when no job is eligible.
	ClaimNext(ctx context.Context, jobType model.JobType, workerID string, now time.Time, leaseDuration time.Duration) (*model.Job, error)
	Save(ctx context.Context, j *model.Job) error
	// ReapExpired resets every in_progress job whose lock_until is before
	// now back to pending, mirroring pg_store.go's ReclaimOrphanedJobs.
	ReapExpired(ctx context.Context, now time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error)
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// ProductRepository stores Product documents.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (*model.Product, error)
	FindByCode(ctx context.Context, code string) (*model.Product, error)
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrConflict is returned by CompareAndSave when the document changed out
// from under the caller.
var ErrConflict = conflictError{}

type conflictError struct{}

func (conflictError) Error() string { return "metadata: conditional update did not match" }
