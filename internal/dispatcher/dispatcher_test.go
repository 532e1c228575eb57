package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/pkg/log"
)

func newTestDispatcher() (*Dispatcher, *metadata.MemoryImageRepository, *metadata.MemoryJobRepository) {
	images := metadata.NewMemoryImageRepository()
	jobs := metadata.NewMemoryJobRepository()
	logger, _ := log.NewLogger(&log.Config{Level: "error"})
	return New(images, jobs, 50, logger), images, jobs
}

func TestDispatcher_PreprocessJobsSeededForPendingImages(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "img1", Status: model.StatusPending}))

	created, err := d.dispatchPreprocessJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	active, err := jobs.ExistsActive(ctx, model.JobPreprocess, "img1")
	require.NoError(t, err)
	assert.True(t, active)

	// second pass is idempotent, no duplicate job
	created, err = d.dispatchPreprocessJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestDispatcher_PrimaryDecodeSkipsImagesNeedingFallback(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "needs-fallback", Status: model.StatusPreprocessed, Processing: model.ProcessingInfo{NeedsFallback: true}}))
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "ready", Status: model.StatusPreprocessed}))

	created, err := d.dispatchPrimaryDecodeJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	active, err := jobs.ExistsActive(ctx, model.JobDecodePrimary, "ready")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = jobs.ExistsActive(ctx, model.JobDecodePrimary, "needs-fallback")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestDispatcher_FallbackJobsSeededForNeedsFallback(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "img1", Status: model.StatusPreprocessed, Processing: model.ProcessingInfo{NeedsFallback: true}}))

	created, err := d.dispatchFallbackJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	active, err := jobs.ExistsActive(ctx, model.JobDecodeFallback, "img1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestDispatcher_FailedImageReseededAfterRetryDelay(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	stale := time.Now().Add(-FailedRetryDelay - time.Minute)
	require.NoError(t, images.Create(ctx, &model.Image{
		ImageID:         "img1",
		Status:          model.StatusFailed,
		StatusUpdatedAt: stale,
	}))

	created, err := d.dispatchFallbackJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	active, err := jobs.ExistsActive(ctx, model.JobDecodeFallback, "img1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestDispatcher_FailedImageNotReseededBeforeRetryDelay(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	require.NoError(t, images.Create(ctx, &model.Image{
		ImageID:         "img1",
		Status:          model.StatusFailed,
		StatusUpdatedAt: time.Now(),
	}))

	created, err := d.dispatchFallbackJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	active, err := jobs.ExistsActive(ctx, model.JobDecodeFallback, "img1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestDispatcher_FailedImageNotReseededAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	d, images, jobs := newTestDispatcher()
	stale := time.Now().Add(-FailedRetryDelay - time.Minute)
	img := &model.Image{ImageID: "img1", Status: model.StatusFailed, StatusUpdatedAt: stale}
	for i := 0; i < MaxFallbackAttempts; i++ {
		img.Processing.FallbackAttempts = append(img.Processing.FallbackAttempts, model.DecoderAttempt{Decoder: "gemini", Timestamp: stale})
	}
	require.NoError(t, images.Create(ctx, img))

	created, err := d.dispatchFallbackJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	active, err := jobs.ExistsActive(ctx, model.JobDecodeFallback, "img1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestDispatcher_RunCycleReapsExpiredLeases(t *testing.T) {
	ctx := context.Background()
	d, _, jobs := newTestDispatcher()
	require.NoError(t, jobs.Create(ctx, &model.Job{
		JobID:     "j1",
		JobType:   model.JobPreprocess,
		Status:    model.JobInProgress,
		LockUntil: time.Now().Add(-time.Minute),
	}))

	result, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reaped)
}

func TestDispatcher_Stats(t *testing.T) {
	ctx := context.Background()
	d, images, _ := newTestDispatcher()
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "img1", Status: model.StatusPending}))
	require.NoError(t, images.Create(ctx, &model.Image{ImageID: "img2", Status: model.StatusPreprocessed, Processing: model.ProcessingInfo{NeedsFallback: true}}))

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Images[model.StatusPending])
	assert.Equal(t, 1, stats.PendingWork.PendingPreprocess)
	assert.Equal(t, 1, stats.PendingWork.PendingFallbackDecode)
}
