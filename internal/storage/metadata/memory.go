package metadata

import (
	"context"
	"sync"
	"time"

	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

// MemoryImageRepository is an in-memory ImageRepository used by tests;
// no Mongo is touched. Grounded on
// _examples/fanjia1024-Aetheris/internal/storage/metadata/memory.go.
type MemoryImageRepository struct {
	mu     sync.RWMutex
	images map[string]*model.Image
}

func NewMemoryImageRepository() *MemoryImageRepository {
	return &MemoryImageRepository{images: make(map[string]*model.Image)}
}

func (r *MemoryImageRepository) Create(ctx context.Context, img *model.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.images[img.ImageID]; exists {
		return pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "image %s already exists", img.ImageID), pkgerrors.KindStateConflict)
	}
	cp := *img
	r.images[img.ImageID] = &cp
	return nil
}

func (r *MemoryImageRepository) Get(ctx context.Context, imageID string) (*model.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, exists := r.images[imageID]
	if !exists {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "image %s", imageID), pkgerrors.KindInputInvalid)
	}
	cp := *img
	return &cp, nil
}

func (r *MemoryImageRepository) CompareAndSave(ctx context.Context, img *model.Image, expected model.ImageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.images[img.ImageID]
	if !exists || current.Status != expected {
		return pkgerrors.WithKind(pkgerrors.Wrapf(ErrConflict, "image %s", img.ImageID), pkgerrors.KindStateConflict)
	}
	cp := *img
	r.images[img.ImageID] = &cp
	return nil
}

func (r *MemoryImageRepository) ListByStatus(ctx context.Context, status model.ImageStatus, limit int) ([]*model.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Image
	for _, img := range r.images {
		if img.Status == status {
			cp := *img
			out = append(out, &cp)
		}
	}
	sortImagesByStatusUpdatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryImageRepository) ListByBatch(ctx context.Context, batchID string) ([]*model.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Image
	for _, img := range r.images {
		if img.BatchID == batchID {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryImageRepository) CountByStatus(ctx context.Context) (map[model.ImageStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.ImageStatus]int64)
	for _, img := range r.images {
		out[img.Status]++
	}
	return out, nil
}

func (r *MemoryImageRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (r *MemoryImageRepository) Close(ctx context.Context) error        { return nil }

func sortImagesByStatusUpdatedAt(images []*model.Image) {
	for i := 1; i < len(images); i++ {
		for j := i; j > 0 && images[j].StatusUpdatedAt.Before(images[j-1].StatusUpdatedAt); j-- {
			images[j], images[j-1] = images[j-1], images[j]
		}
	}
}

// MemoryDetectionRepository is an in-memory DetectionRepository.
type MemoryDetectionRepository struct {
	mu         sync.RWMutex
	detections map[string]*model.Detection
}

func NewMemoryDetectionRepository() *MemoryDetectionRepository {
	return &MemoryDetectionRepository{detections: make(map[string]*model.Detection)}
}

func (r *MemoryDetectionRepository) Create(ctx context.Context, d *model.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.detections[d.DetectionID] = &cp
	return nil
}

func (r *MemoryDetectionRepository) Get(ctx context.Context, detectionID string) (*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, exists := r.detections[detectionID]
	if !exists {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "detection %s", detectionID), pkgerrors.KindInputInvalid)
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryDetectionRepository) ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Detection
	for _, d := range r.detections {
		if d.ImageID == imageID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryDetectionRepository) Save(ctx context.Context, d *model.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.detections[d.DetectionID] = &cp
	return nil
}

func (r *MemoryDetectionRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (r *MemoryDetectionRepository) Close(ctx context.Context) error        { return nil }

// MemoryJobRepository is an in-memory JobRepository implementing the same
// atomic-claim contract as MongoJobRepository, guarded by a mutex instead
// of FindOneAndUpdate.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*model.Job)}
}

func (r *MemoryJobRepository) Create(ctx context.Context, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.JobID] = &cp
	return nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, exists := r.jobs[jobID]
	if !exists {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "job %s", jobID), pkgerrors.KindInputInvalid)
	}
	cp := *j
	return &cp, nil
}

func (r *MemoryJobRepository) ExistsActive(ctx context.Context, jobType model.JobType, imageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ImageID == imageID && j.JobType == jobType && (j.Status == model.JobPending || j.Status == model.JobInProgress) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryJobRepository) ClaimNext(ctx context.Context, jobType model.JobType, workerID string, now time.Time, leaseDuration time.Duration) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *model.Job
	for _, j := range r.jobs {
		if j.JobType != jobType {
			continue
		}
		eligible := (j.Status == model.JobPending && !j.ScheduledFor.After(now)) ||
			(j.Status == model.JobInProgress && j.LockUntil.Before(now))
		if !eligible {
			continue
		}
		if best == nil || j.Priority > best.Priority || (j.Priority == best.Priority && j.ScheduledFor.Before(best.ScheduledFor)) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Start(now, workerID, leaseDuration)
	cp := *best
	return &cp, nil
}

func (r *MemoryJobRepository) Save(ctx context.Context, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.JobID] = &cp
	return nil
}

func (r *MemoryJobRepository) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.LeaseExpired(now) {
			j.Status = model.JobPending
			j.WorkerID = ""
			j.LockUntil = time.Time{}
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *MemoryJobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.JobStatus]int64)
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (r *MemoryJobRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (r *MemoryJobRepository) Close(ctx context.Context) error        { return nil }

// MemoryProductRepository is an in-memory ProductRepository.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*model.Product
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*model.Product)}
}

// Seed inserts a product directly, used by tests to populate the catalog.
func (r *MemoryProductRepository) Seed(p *model.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ProductID] = &cp
}

func (r *MemoryProductRepository) Get(ctx context.Context, productID string) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.products[productID]
	if !exists {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "product %s", productID), pkgerrors.KindInputInvalid)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProductRepository) FindByCode(ctx context.Context, code string) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.HasCode(code) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryProductRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (r *MemoryProductRepository) Close(ctx context.Context) error        { return nil }
