package handler

import (
	"context"
	"fmt"
	"time"

	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

// ResolveAction is one of the three dispositions a reviewer can apply.
type ResolveAction string

const (
	ActionChoose    ResolveAction = "choose"
	ActionNoBarcode ResolveAction = "no_barcode"
	ActionSkip      ResolveAction = "skip"
)

// ResolveRequest is the input to ManualResolve, sourced from
// internal/httpapi's resolve endpoint body.
type ResolveRequest struct {
	Action      ResolveAction
	DetectionID string
	Reviewer    string
}

// ManualResolve implements the Manual Resolve Handler (spec.md §4.10).
// Unlike the queue-driven handlers, it runs synchronously from an HTTP
// request, so it returns the updated Image directly instead of a
// worker.Handler result map.
func (h *Handlers) ManualResolve(ctx context.Context, imageID string, req ResolveRequest) (*model.Image, error) {
	img, err := h.Images.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status != model.StatusManualReview {
		return nil, pkgerrors.WithKind(fmt.Errorf("image %s is not in manual_review (status=%s)", imageID, img.Status), pkgerrors.KindInputInvalid)
	}

	detections, err := h.Detections.ListByImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch req.Action {
	case ActionChoose:
		if req.DetectionID == "" {
			return nil, pkgerrors.WithKind(fmt.Errorf("detection_id is required for action=choose"), pkgerrors.KindInputInvalid)
		}
		var chosen *model.Detection
		for _, d := range detections {
			if d.DetectionID == req.DetectionID {
				chosen = d
				break
			}
		}
		if chosen == nil {
			return nil, pkgerrors.WithKind(fmt.Errorf("detection %s not found for image %s", req.DetectionID, imageID), pkgerrors.KindInputInvalid)
		}
		for _, d := range detections {
			if d.DetectionID == chosen.DetectionID {
				d.MarkChosen(now, req.Reviewer)
			} else {
				d.MarkRejected(now, req.Reviewer)
			}
			if err := h.Detections.Save(ctx, d); err != nil {
				return nil, err
			}
		}
		if err := h.transition(ctx, img, model.StatusManualReview, model.StatusDecodedManual, now); err != nil {
			return nil, err
		}

	case ActionNoBarcode:
		for _, d := range detections {
			d.MarkRejected(now, req.Reviewer)
			if err := h.Detections.Save(ctx, d); err != nil {
				return nil, err
			}
		}
		if err := h.transition(ctx, img, model.StatusManualReview, model.StatusFailed, now); err != nil {
			return nil, err
		}

	case ActionSkip:
		return img, nil

	default:
		return nil, pkgerrors.WithKind(fmt.Errorf("unknown resolve action %q", req.Action), pkgerrors.KindInputInvalid)
	}

	return img, nil
}
