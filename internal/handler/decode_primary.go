package handler

import (
	"context"
	"io"
	"time"

	"barcode-pipeline/internal/blobpath"
	"barcode-pipeline/internal/decode/primary"
	"barcode-pipeline/internal/model"
)

// DecodePrimary implements the Decode-Primary Handler (spec.md §4.7): run
// every registered local decoder over each generated rotation, persist a
// Detection per raw code regardless of acceptance, and route on the
// deduped accepted set's size.
func (h *Handlers) DecodePrimary(ctx context.Context, j *model.Job) (map[string]string, error) {
	img, err := h.Images.Get(ctx, j.ImageID)
	if err != nil {
		return nil, err
	}

	switch img.Status {
	case model.StatusPreprocessed:
		if img.Processing.NeedsFallback {
			return map[string]string{"skipped": "true"}, nil
		}
		if err := h.transition(ctx, img, model.StatusPreprocessed, model.StatusDecodingPrimary, time.Now()); err != nil {
			return nil, err
		}
	case model.StatusDecodingPrimary:
		// resuming after a crash between transition and completion
	default:
		h.Logger.Info("image not eligible for primary decode, skipping", "image_id", img.ImageID, "status", img.Status)
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

	rotations := img.Preprocessing.RotationsGenerated
	if len(rotations) == 0 {
		rotations = []int{0}
	}

	start := time.Now()
	type rawResult struct {
		primary.Result
		Rotation int
	}
	var raw []rawResult
	for _, deg := range rotations {
		path := blobpath.PreprocessedRotationPath(img.BatchID, img.ImageID, deg)
		rc, err := h.Blobs.Get(ctx, path)
		if err != nil {
			continue // this rotation variant may not have been produced; try the rest
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		for _, dec := range h.Primary {
			results, err := dec.Decode(ctx, data)
			if err != nil {
				h.Logger.Warn("primary decoder error", "image_id", img.ImageID, "rotation", deg, "error", err)
				continue
			}
			for _, r := range results {
				raw = append(raw, rawResult{Result: r, Rotation: deg})
			}
		}
	}
	durationMS := int(time.Since(start).Milliseconds())

	now := time.Now()
	img.AddDecoderAttempt(now, "zbar", len(raw) > 0, false, len(raw), durationMS, "")

	type detAccum struct {
		det       *model.Detection
		accepted  bool
	}
	var created []detAccum
	acceptedNormalized := map[string]bool{}
	for _, r := range raw {
		sym, reasons, normalized := classifyCode(r.Code)
		d := &model.Detection{
			DetectionID:     newDetectionID(),
			ImageID:         img.ImageID,
			BatchID:         img.BatchID,
			SourceFilename:  img.SourceFilename,
			Code:            r.Code,
			Symbology:       sym,
			NormalizedCode:  normalized,
			Source:          decoderSource(r.Decoder),
			RotationDegrees: r.Rotation,
			ChecksumValid:   reasons.ChecksumValid,
			LengthValid:     reasons.LengthValid,
			NumericOnly:     reasons.NumericOnly,
			DetectedAt:      now,
		}
		if p := h.lookupProduct(ctx, normalized); p != nil {
			d.ProductFound = true
			d.ProductID = p.ProductID
		}
		created = append(created, detAccum{det: d, accepted: reasons.Accepted()})
		if reasons.Accepted() {
			acceptedNormalized[normalized] = true
		}
	}

	switch len(acceptedNormalized) {
	case 0:
		for _, c := range created {
			if err := h.recordDetection(ctx, c.det); err != nil {
				return nil, err
			}
		}
		img.Processing.NeedsFallback = true
		if err := h.transition(ctx, img, model.StatusDecodingPrimary, model.StatusPreprocessed, now); err != nil {
			return nil, err
		}
		return map[string]string{"needs_fallback": "true"}, nil

	case 1:
		for _, c := range created {
			if err := h.recordDetection(ctx, c.det); err != nil {
				return nil, err
			}
		}
		dest := blobpath.ProcessedPath(img.BatchID, img.ImageID)
		if _, err := h.Blobs.Move(ctx, blobpath.PreprocessedPath(img.BatchID, img.ImageID), dest); err != nil {
			h.Logger.Warn("move to processed failed", "image_id", img.ImageID, "error", err)
		}
		img.FinalBlobPath = dest
		img.DetectionCount = len(created)
		if err := h.transition(ctx, img, model.StatusDecodingPrimary, model.StatusDecodedPrimary, now); err != nil {
			return nil, err
		}
		return map[string]string{"status": "decoded_primary"}, nil

	default:
		for _, c := range created {
			if c.accepted {
				c.det.Ambiguous = true
			}
			if err := h.recordDetection(ctx, c.det); err != nil {
				return nil, err
			}
		}
		dest := blobpath.ManualReviewPath(img.BatchID, img.ImageID)
		if _, err := h.Blobs.Move(ctx, blobpath.PreprocessedPath(img.BatchID, img.ImageID), dest); err != nil {
			h.Logger.Warn("move to manual-review failed", "image_id", img.ImageID, "error", err)
		}
		img.FinalBlobPath = dest
		img.DetectionCount = len(created)
		if err := h.transition(ctx, img, model.StatusDecodingPrimary, model.StatusManualReview, now); err != nil {
			return nil, err
		}
		return map[string]string{"status": "manual_review"}, nil
	}
}

func decoderSource(decoder string) model.DetectionSource {
	if decoder == "zxing" {
		return model.SourcePrimaryZxing
	}
	return model.SourcePrimaryZbar
}
