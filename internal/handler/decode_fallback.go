package handler

import (
	"context"
	"io"
	"time"

	"barcode-pipeline/internal/blobpath"
	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/statemachine"
	pkgerrors "barcode-pipeline/pkg/errors"
)

// DecodeFallback implements both the Decode-Fallback Handler (spec.md
// §4.8) and the Failed-Retry Handler (spec.md §4.9): the two share a job
// type and handler body, differing only in which status they transition
// from and in the attempt-count/delay guard the Dispatcher already
// applies before seeding the job, per SPEC_FULL.md's resolution of how
// the original's standalone decode_failed worker folds into the queue.
func (h *Handlers) DecodeFallback(ctx context.Context, j *model.Job) (map[string]string, error) {
	img, err := h.Images.Get(ctx, j.ImageID)
	if err != nil {
		return nil, err
	}

	isRetry := false
	switch img.Status {
	case model.StatusPreprocessed:
		if !img.Processing.NeedsFallback {
			return map[string]string{"skipped": "true"}, nil
		}
		if err := h.transition(ctx, img, model.StatusPreprocessed, model.StatusDecodingFallback, time.Now()); err != nil {
			return nil, err
		}
	case model.StatusFailed:
		isRetry = true
		if !statemachine.Allowed(img, model.StatusDecodingFallback) {
			return map[string]string{"skipped": "true"}, nil
		}
		if err := h.transition(ctx, img, model.StatusFailed, model.StatusDecodingFallback, time.Now()); err != nil {
			return nil, err
		}
	case model.StatusDecodingFallback:
		// resuming after a crash between transition and completion; infer
		// isRetry from whether a fallback attempt already exists, since a
		// fresh decode_fallback job never crosses through status=failed.
		isRetry = img.FallbackAttemptCount() > 0
	default:
		h.Logger.Info("image not eligible for fallback decode, skipping", "image_id", img.ImageID, "status", img.Status)
		return map[string]string{"skipped": "true"}, nil
	}

	existing, err := h.Detections.ListByImage(ctx, img.ImageID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		h.Logger.Info("detections already exist, skipping re-decode", "image_id", img.ImageID)
		return map[string]string{"skipped": "true"}, nil
	}

	imagePath := img.Preprocessing.NormalizedPath
	if imagePath == "" {
		imagePath = blobpath.PreprocessedPath(img.BatchID, img.ImageID)
	}
	if img.FinalBlobPath != "" {
		// a failed image's artifact was moved to failed/ by failImage
		imagePath = img.FinalBlobPath
	}
	rc, err := h.Blobs.Get(ctx, imagePath)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "download image for fallback decode")
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read image for fallback decode")
	}

	start := time.Now()
	resp, err := h.Fallback.ExtractBarcodes(ctx, data)
	durationMS := int(time.Since(start).Milliseconds())
	now := time.Now()

	if err != nil {
		img.AddDecoderAttempt(now, "gemini", false, true, 0, durationMS, err.Error())
		img.AddError(now, "decode_fallback", err.Error(), nil)
		if pkgerrors.Classify(err).Retriable() {
			if saveErr := h.Images.CompareAndSave(ctx, img, model.StatusDecodingFallback); saveErr != nil && pkgerrors.Classify(saveErr) != pkgerrors.KindStateConflict {
				return nil, saveErr
			}
			return nil, err
		}
		return nil, h.failImage(ctx, img, now, isRetry)
	}

	img.AddDecoderAttempt(now, "gemini", len(resp.Results) > 0, true, len(resp.Results), durationMS, "")
	if resp.TokensUsed > 0 {
		img.Processing.GeminiTokensUsed += resp.TokensUsed
	}

	var created []*model.Detection
	acceptedNormalized := map[string]bool{}
	for _, r := range resp.Results {
		sym, reasons, normalized := classifyCode(r.Code)
		d := &model.Detection{
			DetectionID:          newDetectionID(),
			ImageID:              img.ImageID,
			BatchID:              img.BatchID,
			SourceFilename:       img.SourceFilename,
			Code:                 r.Code,
			Symbology:            sym,
			NormalizedCode:       normalized,
			Source:               model.SourceFallbackGemini,
			Confidence:           r.Confidence,
			HasConfidence:        true,
			ChecksumValid:        reasons.ChecksumValid,
			LengthValid:          reasons.LengthValid,
			NumericOnly:          reasons.NumericOnly,
			GeminiConfidence:     r.Confidence,
			HasGeminiConfidence:  true,
			GeminiSymbologyGuess: r.SymbologyGuess,
			DetectedAt:           now,
		}
		if p := h.lookupProduct(ctx, normalized); p != nil {
			d.ProductFound = true
			d.ProductID = p.ProductID
		}
		created = append(created, d)
		if reasons.Accepted() {
			acceptedNormalized[normalized] = true
		}
	}

	switch len(acceptedNormalized) {
	case 0:
		return map[string]string{"status": "failed"}, h.failImage(ctx, img, now, isRetry)

	case 1:
		for _, d := range created {
			if err := h.recordDetection(ctx, d); err != nil {
				return nil, err
			}
		}
		dest := blobpath.ProcessedPath(img.BatchID, img.ImageID)
		if _, err := h.Blobs.Move(ctx, imagePath, dest); err != nil {
			h.Logger.Warn("move to processed failed", "image_id", img.ImageID, "error", err)
		}
		img.FinalBlobPath = dest
		img.DetectionCount = len(created)
		if err := h.transition(ctx, img, model.StatusDecodingFallback, model.StatusDecodedFallback, now); err != nil {
			return nil, err
		}
		return map[string]string{"status": "decoded_fallback"}, nil

	default:
		for _, d := range created {
			if acceptedNormalized[d.NormalizedCode] {
				d.Ambiguous = true
			}
			if err := h.recordDetection(ctx, d); err != nil {
				return nil, err
			}
		}
		dest := blobpath.ManualReviewPath(img.BatchID, img.ImageID)
		if _, err := h.Blobs.Move(ctx, imagePath, dest); err != nil {
			h.Logger.Warn("move to manual-review failed", "image_id", img.ImageID, "error", err)
		}
		img.FinalBlobPath = dest
		img.DetectionCount = len(created)
		if err := h.transition(ctx, img, model.StatusDecodingFallback, model.StatusManualReview, now); err != nil {
			return nil, err
		}
		return map[string]string{"status": "manual_review"}, nil
	}
}

// failImage moves the artifact to failed/ (first-pass only — a retry
// that's still unresolved is already there from the first pass) and
// transitions to status=failed.
func (h *Handlers) failImage(ctx context.Context, img *model.Image, now time.Time, isRetry bool) error {
	if !isRetry {
		dest := blobpath.FailedPath(img.BatchID, img.ImageID)
		src := img.Preprocessing.NormalizedPath
		if src == "" {
			src = blobpath.PreprocessedPath(img.BatchID, img.ImageID)
		}
		if _, err := h.Blobs.Move(ctx, src, dest); err != nil {
			h.Logger.Warn("move to failed failed", "image_id", img.ImageID, "error", err)
		}
		img.FinalBlobPath = dest
	}
	return h.transition(ctx, img, model.StatusDecodingFallback, model.StatusFailed, now)
}
