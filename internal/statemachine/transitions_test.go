package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"barcode-pipeline/internal/model"
)

func TestAllowedHappyPath(t *testing.T) {
	img := &model.Image{Status: model.StatusPending}
	assert.True(t, Allowed(img, model.StatusPreprocessing))

	img.Status = model.StatusPreprocessing
	assert.True(t, Allowed(img, model.StatusPreprocessed))

	img.Status = model.StatusPreprocessed
	assert.True(t, Allowed(img, model.StatusDecodingPrimary))

	img.Status = model.StatusDecodingPrimary
	assert.True(t, Allowed(img, model.StatusDecodedPrimary))
}

func TestFallbackEdgeRequiresNeedsFallback(t *testing.T) {
	img := &model.Image{Status: model.StatusPreprocessed}
	assert.False(t, Allowed(img, model.StatusDecodingFallback))

	img.Processing.NeedsFallback = true
	assert.True(t, Allowed(img, model.StatusDecodingFallback))
}

func TestFailedRetryEdgeRequiresAttemptBudget(t *testing.T) {
	img := &model.Image{Status: model.StatusFailed}
	for i := 0; i < 3; i++ {
		img.Processing.FallbackAttempts = append(img.Processing.FallbackAttempts, model.DecoderAttempt{})
	}
	assert.False(t, Allowed(img, model.StatusDecodingFallback))

	img.Processing.FallbackAttempts = img.Processing.FallbackAttempts[:2]
	assert.True(t, Allowed(img, model.StatusDecodingFallback))
}

func TestIllegalTransitionRejected(t *testing.T) {
	img := &model.Image{Status: model.StatusPending}
	assert.False(t, Allowed(img, model.StatusDecodedManual))
	assert.False(t, Allowed(img, model.StatusFailed))
}

func TestManualReviewTerminalEdges(t *testing.T) {
	img := &model.Image{Status: model.StatusManualReview}
	assert.True(t, Allowed(img, model.StatusDecodedManual))
	assert.True(t, Allowed(img, model.StatusFailed))
	assert.False(t, Allowed(img, model.StatusDecodedPrimary))
}
