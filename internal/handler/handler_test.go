package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/decode/fallback"
	"barcode-pipeline/internal/decode/primary"
	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/normalize"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/internal/storage/object"
	"barcode-pipeline/pkg/log"
)

type testEnv struct {
	h      *Handlers
	images *metadata.MemoryImageRepository
	dets   *metadata.MemoryDetectionRepository
	blobs  *object.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)

	images := metadata.NewMemoryImageRepository()
	dets := metadata.NewMemoryDetectionRepository()
	blobs := object.NewMemoryStore()

	h := &Handlers{
		Images:     images,
		Detections: dets,
		Products:   metadata.NewMemoryProductRepository(),
		Blobs:      blobs,
		Normalizer: normalize.NewPassthroughNormalizer(),
		Primary:    []primary.Decoder{primary.NewFixtureDecoder("zbar")},
		Fallback:   fallback.NewFixtureClient(42),
		Logger:     logger,
		PreprocessOpts: normalize.Options{
			Rotations: []int{0, 90},
		},
	}
	return &testEnv{h: h, images: images, dets: dets, blobs: blobs}
}

func (e *testEnv) createPendingImage(t *testing.T, imageID, batchID, sourceFilename string, fixture string) *model.Image {
	t.Helper()
	now := time.Now()
	img := &model.Image{
		ImageID:         imageID,
		BatchID:         batchID,
		SourcePath:      "incoming/" + batchID + "/" + sourceFilename,
		SourceFilename:  sourceFilename,
		Status:          model.StatusPending,
		StatusUpdatedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.images.Create(context.Background(), img))
	require.NoError(t, e.blobs.Put(context.Background(), "incoming/"+batchID+"/"+sourceFilename, strings.NewReader(fixture), int64(len(fixture)), nil))
	return img
}

func newJob(jobType model.JobType, imageID, batchID string) *model.Job {
	now := time.Now()
	return &model.Job{
		JobID:        imageID + "-" + string(jobType),
		JobType:      jobType,
		ImageID:      imageID,
		BatchID:      batchID,
		Status:       model.JobInProgress,
		MaxRetries:   3,
		LockUntil:    now.Add(time.Minute),
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}
