package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"barcode-pipeline/internal/handler"
	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
	"barcode-pipeline/pkg/metrics"
)

func errStatus(err error) int {
	// repositories tag not-found errors KindInputInvalid, so check for
	// ErrNotFound before classifying.
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return consts.StatusNotFound
	}
	switch pkgerrors.Classify(err) {
	case pkgerrors.KindInputInvalid:
		return consts.StatusBadRequest
	case pkgerrors.KindStateConflict:
		return consts.StatusConflict
	default:
		return consts.StatusInternalServerError
	}
}

// listReview serves GET /api/images/review?limit=&batch_id=, the queue a
// reviewer's UI polls (spec.md §4.11).
func (a *App) listReview(ctx context.Context, c *app.RequestContext) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	batchID := c.Query("batch_id")

	images, err := a.images.ListByStatus(ctx, model.StatusManualReview, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if batchID != "" {
		filtered := images[:0]
		for _, img := range images {
			if img.BatchID == batchID {
				filtered = append(filtered, img)
			}
		}
		images = filtered
	}

	out := make([]map[string]any, 0, len(images))
	for _, img := range images {
		out = append(out, imageSummary(img))
	}
	c.JSON(consts.StatusOK, map[string]any{"images": out, "count": len(out)})
}

// getImage serves GET /api/images/:image_id, returning the image with
// every detection recorded against it.
func (a *App) getImage(ctx context.Context, c *app.RequestContext) {
	imageID := c.Param("image_id")
	img, err := a.images.Get(ctx, imageID)
	if err != nil {
		c.JSON(errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	detections, err := a.detections.ListByImage(ctx, imageID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := imageSummary(img)
	dets := make([]map[string]any, 0, len(detections))
	for _, d := range detections {
		dets = append(dets, detectionSummary(d))
	}
	out["detections"] = dets
	c.JSON(consts.StatusOK, out)
}

type resolveBody struct {
	Action      string `json:"action"`
	DetectionID string `json:"detection_id"`
	Reviewer    string `json:"reviewer"`
}

// resolveImage serves POST /api/images/:image_id/resolve, the reviewer's
// disposition endpoint (spec.md §4.10 via the synchronous Manual-Resolve
// handler).
func (a *App) resolveImage(ctx context.Context, c *app.RequestContext) {
	imageID := c.Param("image_id")
	var body resolveBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	img, err := a.handlers.ManualResolve(ctx, imageID, handler.ResolveRequest{
		Action:      handler.ResolveAction(body.Action),
		DetectionID: body.DetectionID,
		Reviewer:    body.Reviewer,
	})
	if err != nil {
		c.JSON(errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, imageSummary(img))
}

// stats serves GET /api/stats, mirroring the dispatcher's get_stats
// output (spec.md §4.4). A batch_id query parameter is not applied: the
// figures always cover every batch.
func (a *App) stats(ctx context.Context, c *app.RequestContext) {
	s, err := a.dispatch.Stats(ctx)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, s)
}

// metrics serves GET /metrics in Prometheus text exposition format.
func (a *App) metrics(ctx context.Context, c *app.RequestContext) {
	c.Response.Header.Set("Content-Type", "text/plain; version=0.0.4")
	if err := metrics.WritePrometheus(c.Response.BodyWriter()); err != nil {
		a.logger.Warn("writing metrics response failed", "error", err)
	}
}

func (a *App) healthz(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

func imageSummary(img *model.Image) map[string]any {
	return map[string]any{
		"image_id":         img.ImageID,
		"batch_id":         img.BatchID,
		"source_filename":  img.SourceFilename,
		"external_id":      img.ExternalID,
		"status":           img.Status,
		"status_updated_at": img.StatusUpdatedAt,
		"final_blob_path":  img.FinalBlobPath,
		"detection_count":  img.DetectionCount,
		"needs_fallback":   img.Processing.NeedsFallback,
		"created_at":       img.CreatedAt,
		"updated_at":       img.UpdatedAt,
	}
}

func detectionSummary(d *model.Detection) map[string]any {
	return map[string]any{
		"detection_id":    d.DetectionID,
		"code":            d.Code,
		"symbology":       d.Symbology,
		"normalized_code": d.NormalizedCode,
		"source":          d.Source,
		"confidence":      d.Confidence,
		"has_confidence":  d.HasConfidence,
		"checksum_valid":  d.ChecksumValid,
		"length_valid":    d.LengthValid,
		"numeric_only":    d.NumericOnly,
		"ambiguous":       d.Ambiguous,
		"chosen":          d.Chosen,
		"rejected":        d.Rejected,
		"product_found":   d.ProductFound,
		"product_id":      d.ProductID,
		"detected_at":     d.DetectedAt,
	}
}
