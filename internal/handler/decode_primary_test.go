package handler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/model"
)

func preprocessedImage(t *testing.T, env *testEnv, imageID, batchID, fixture string, needsFallback bool) *model.Image {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	img := &model.Image{
		ImageID:         imageID,
		BatchID:         batchID,
		SourceFilename:  "p.jpg",
		Status:          model.StatusPreprocessed,
		StatusUpdatedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
		Preprocessing: model.PreprocessingInfo{
			NormalizedPath:     "preprocessed/" + batchID + "/" + imageID + ".jpg",
			RotationsGenerated: []int{0, 90},
		},
	}
	img.Processing.NeedsFallback = needsFallback
	require.NoError(t, env.images.Create(ctx, img))

	for _, deg := range []int{0, 90} {
		var blobPath string
		if deg == 0 {
			blobPath = "preprocessed/" + batchID + "/" + imageID + ".jpg"
		} else {
			blobPath = "preprocessed/" + batchID + "/" + imageID + "_rot90.jpg"
		}
		require.NoError(t, env.blobs.Put(ctx, blobPath, stringReader(fixture), int64(len(fixture)), nil))
	}
	return img
}

func stringReader(s string) *sr { return &sr{s: s} }

type sr struct {
	s string
	i int
}

func (r *sr) Read(p []byte) (int, error) {
	n := copy(p, r.s[r.i:])
	r.i += n
	if n == 0 {
		return 0, errSrEOF
	}
	return n, nil
}

var errSrEOF = io.EOF

func TestDecodePrimary_SingleAcceptedCodeDecodesSuccessfully(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := preprocessedImage(t, env, "img1", "b1", "CODE:8011642115887:EAN-13", false)

	job := newJob(model.JobDecodePrimary, img.ImageID, img.BatchID)
	_, err := env.h.DecodePrimary(ctx, job)
	require.NoError(t, err)

	saved, err := env.images.Get(ctx, img.ImageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDecodedPrimary, saved.Status)

	dets, err := env.dets.ListByImage(ctx, img.ImageID)
	require.NoError(t, err)
	require.NotEmpty(t, dets)
	assert.Equal(t, "8011642115887", dets[0].NormalizedCode)
	assert.True(t, dets[0].ChecksumValid)
}

func TestDecodePrimary_ZeroCodesMarksNeedsFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := preprocessedImage(t, env, "img2", "b1", "no barcode visible here", false)

	job := newJob(model.JobDecodePrimary, img.ImageID, img.BatchID)
	result, err := env.h.DecodePrimary(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "true", result["needs_fallback"])

	saved, err := env.images.Get(ctx, img.ImageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPreprocessed, saved.Status)
	assert.True(t, saved.Processing.NeedsFallback)
}

func TestDecodePrimary_AmbiguousCodesRouteToManualReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := preprocessedImage(t, env, "img3", "b1", "CODE:8011642115887:EAN-13\nCODE:4006381333931:EAN-13", false)

	job := newJob(model.JobDecodePrimary, img.ImageID, img.BatchID)
	result, err := env.h.DecodePrimary(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "manual_review", result["status"])

	saved, err := env.images.Get(ctx, img.ImageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusManualReview, saved.Status)

	dets, err := env.dets.ListByImage(ctx, img.ImageID)
	require.NoError(t, err)
	for _, d := range dets {
		assert.True(t, d.Ambiguous)
	}
}

func TestDecodePrimary_SkipsImageFlaggedForFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := preprocessedImage(t, env, "img4", "b1", "CODE:8011642115887:EAN-13", true)

	job := newJob(model.JobDecodePrimary, img.ImageID, img.BatchID)
	result, err := env.h.DecodePrimary(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "true", result["skipped"])
}
