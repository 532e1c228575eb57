// Package handler implements the Stage Handlers (spec.md §4.6–§4.10):
// Preprocess, Decode-Primary, Decode-Fallback (also serving the
// Failed-Retry path per spec.md §4.9) and Manual-Resolve. Each queue-
// driven handler matches worker.Handler's signature so Handlers' methods
// register directly into a worker.Runtime; Manual-Resolve is synchronous
// and is called straight from internal/httpapi instead.
//
// Grounded on the teacher's handler shape in
// _examples/fanjia1024-Aetheris/internal/app/worker/agent_job.go
// (a struct holding its collaborators, one method per job type), with
// the state-machine and collaborator set specific to this domain.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"barcode-pipeline/internal/barcode"
	"barcode-pipeline/internal/decode/fallback"
	"barcode-pipeline/internal/decode/primary"
	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/normalize"
	"barcode-pipeline/internal/statemachine"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/internal/storage/object"
	"barcode-pipeline/pkg/errors"
	"barcode-pipeline/pkg/log"
	"barcode-pipeline/pkg/metrics"
)

// Handlers bundles every collaborator a Stage Handler needs.
type Handlers struct {
	Images     metadata.ImageRepository
	Detections metadata.DetectionRepository
	Products   metadata.ProductRepository
	Blobs      object.Store
	Normalizer normalize.Normalizer
	Primary    []primary.Decoder // one per decoder backend; results pooled across all
	Fallback   fallback.Client
	Logger     *log.Logger

	PreprocessOpts normalize.Options
}

// casOrNoop applies a conditional save; a lost race (ErrConflict) is
// not an error, it means another worker already advanced this image,
// matching spec.md §5's "the loser is a no-op".
func (h *Handlers) casOrNoop(ctx context.Context, img *model.Image, expected model.ImageStatus) error {
	err := h.Images.CompareAndSave(ctx, img, expected)
	if err == nil {
		return nil
	}
	if errors.Classify(err) == errors.KindStateConflict {
		h.Logger.Info("lost status-transition race, treating as no-op", "image_id", img.ImageID, "expected", expected)
		return nil
	}
	return err
}

// transition asserts the move is legal per the state machine before
// attempting it, then applies it with a conditional save.
func (h *Handlers) transition(ctx context.Context, img *model.Image, from model.ImageStatus, to model.ImageStatus, now time.Time) error {
	if !statemachine.Allowed(img, to) {
		return errors.WithKind(fmt.Errorf("illegal transition %s -> %s for image %s", from, to, img.ImageID), errors.KindInputInvalid)
	}
	img.UpdateStatus(now, to)
	return h.casOrNoop(ctx, img, from)
}

func newDetectionID() string {
	return uuid.NewString()
}

// lookupProduct tolerates a nil Products repository (some test setups
// skip catalog lookups) and a miss, both resulting in an unmatched
// Detection rather than an error.
func (h *Handlers) lookupProduct(ctx context.Context, code string) *model.Product {
	if h.Products == nil {
		return nil
	}
	p, err := h.Products.FindByCode(ctx, code)
	if err != nil || p == nil {
		return nil
	}
	return p
}

func classifyCode(raw string) (model.Symbology, barcode.Reasons, string) {
	sym, reasons := barcode.Classify(raw)
	normalized := barcode.Normalize(raw, sym)
	return model.Symbology(sym), reasons, normalized
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// recordDetection persists d and bumps the detections-by-source counter.
func (h *Handlers) recordDetection(ctx context.Context, d *model.Detection) error {
	if err := h.Detections.Create(ctx, d); err != nil {
		return err
	}
	metrics.DetectionsTotal.WithLabelValues(string(d.Source)).Inc()
	return nil
}
