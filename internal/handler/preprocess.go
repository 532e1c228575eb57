package handler

import (
	"context"
	"io"
	"time"

	"barcode-pipeline/internal/blobpath"
	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

// Preprocess implements the Preprocess Handler (spec.md §4.6). It
// downloads the incoming source image, normalizes it into rotated
// variants, uploads the normalized artifact, archives the source and
// transitions preprocessing -> preprocessed.
func (h *Handlers) Preprocess(ctx context.Context, j *model.Job) (map[string]string, error) {
	img, err := h.Images.Get(ctx, j.ImageID)
	if err != nil {
		return nil, err
	}
	switch img.Status {
	case model.StatusPending:
		if err := h.transition(ctx, img, model.StatusPending, model.StatusPreprocessing, time.Now()); err != nil {
			return nil, err
		}
	case model.StatusPreprocessing:
		// resuming after a crash between transition and completion
	default:
		h.Logger.Info("image not eligible for preprocessing, skipping", "image_id", img.ImageID, "status", img.Status)
		return map[string]string{"skipped": "true"}, nil
	}

	srcPath := blobpath.IncomingPath(img.BatchID, img.SourceFilename)
	rc, err := h.Blobs.Get(ctx, srcPath)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "download incoming source")
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read incoming source")
	}

	start := time.Now()
	result, err := h.Normalizer.Normalize(ctx, data, h.PreprocessOpts)
	if err != nil {
		if pkgerrors.Classify(err) == pkgerrors.KindInputInvalid {
			now := time.Now()
			img.AddError(now, "preprocess", err.Error(), nil)
			if terr := h.transition(ctx, img, model.StatusPreprocessing, model.StatusFailed, now); terr != nil {
				return nil, terr
			}
			return map[string]string{"failed": "true"}, nil
		}
		return nil, err
	}
	durationMS := int(time.Since(start).Milliseconds())

	degrees := make([]int, 0, len(result.Rotations))
	for _, rot := range result.Rotations {
		degrees = append(degrees, rot.Degrees)
		path := blobpath.PreprocessedRotationPath(img.BatchID, img.ImageID, rot.Degrees)
		if err := h.Blobs.Put(ctx, path, bytesReader(rot.Data), int64(len(rot.Data)), map[string]string{"image_id": img.ImageID}); err != nil {
			return nil, pkgerrors.Wrap(err, "upload normalized artifact")
		}
	}
	normalizedPath := blobpath.PreprocessedPath(img.BatchID, img.ImageID)

	archivedPath := blobpath.ArchivedPath(img.BatchID, img.SourceFilename)
	if _, err := h.Blobs.Move(ctx, srcPath, archivedPath); err != nil {
		h.Logger.Warn("archive move failed, will retry on a later pass", "image_id", img.ImageID, "error", err)
	}

	now := time.Now()
	img.Preprocessing = model.PreprocessingInfo{
		NormalizedPath:     normalizedPath,
		OriginalWidth:      result.OriginalWidth,
		OriginalHeight:     result.OriginalHeight,
		ProcessedWidth:     result.ProcessedWidth,
		ProcessedHeight:    result.ProcessedHeight,
		Grayscale:          result.Grayscale,
		CLAHEApplied:       result.CLAHEApplied,
		Denoised:           result.Denoised,
		RotationsGenerated: degrees,
		DurationMS:         durationMS,
		CompletedAt:        now,
	}
	if err := h.transition(ctx, img, model.StatusPreprocessing, model.StatusPreprocessed, now); err != nil {
		return nil, err
	}
	return map[string]string{"normalized_path": normalizedPath}, nil
}
