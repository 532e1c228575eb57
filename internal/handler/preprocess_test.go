package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/blobpath"
	"barcode-pipeline/internal/model"
)

func TestPreprocess_NormalizesAndArchivesSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := env.createPendingImage(t, "img1", "b1", "p.jpg", "CODE:8011642115887:EAN-13")

	job := newJob(model.JobPreprocess, img.ImageID, img.BatchID)
	result, err := env.h.Preprocess(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, result["normalized_path"])

	saved, err := env.images.Get(ctx, img.ImageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPreprocessed, saved.Status)
	assert.ElementsMatch(t, []int{0, 90}, saved.Preprocessing.RotationsGenerated)

	exists, err := env.blobs.Exists(ctx, blobpath.IncomingPath("b1", "p.jpg"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = env.blobs.Exists(ctx, blobpath.ArchivedPath("b1", "p.jpg"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = env.blobs.Exists(ctx, blobpath.PreprocessedPath("b1", "img1"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPreprocess_EmptySourceFailsImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := env.createPendingImage(t, "img2", "b1", "empty.jpg", "")

	job := newJob(model.JobPreprocess, img.ImageID, img.BatchID)
	_, err := env.h.Preprocess(ctx, job)
	require.NoError(t, err)

	saved, err := env.images.Get(ctx, img.ImageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, saved.Status)
	assert.Len(t, saved.Processing.Errors, 1)
}

func TestPreprocess_SkipsImageNotPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := env.createPendingImage(t, "img3", "b1", "p.jpg", "CODE:123")
	img.Status = model.StatusDecodedPrimary
	require.NoError(t, env.images.CompareAndSave(ctx, img, model.StatusPending))

	job := newJob(model.JobPreprocess, img.ImageID, img.BatchID)
	result, err := env.h.Preprocess(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "true", result["skipped"])
}
