// Package statemachine holds the single source of truth for which Image
// status transitions are legal (spec.md §4.2). Stage Handlers call
// Allowed before attempting a conditional update; the metadata store's
// conditional update is the actual enforcement point, this table is what
// every handler checks against first so illegal transitions never reach
// the store.
package statemachine

import "barcode-pipeline/internal/model"

type edge struct {
	from model.ImageStatus
	to   model.ImageStatus
}

// transitions enumerates every permitted (from, to) pair. The
// preprocessed -> decoding_fallback edge requires NeedsFallback=true,
// checked separately by Allowed since this table only tracks status.
var transitions = map[edge]bool{
	{model.StatusPending, model.StatusPreprocessing}:          true,
	{model.StatusPreprocessing, model.StatusPreprocessed}:     true,
	{model.StatusPreprocessing, model.StatusFailed}:           true,

	{model.StatusPreprocessed, model.StatusDecodingPrimary}:   true,
	{model.StatusDecodingPrimary, model.StatusDecodedPrimary}: true,
	{model.StatusDecodingPrimary, model.StatusPreprocessed}:   true, // needs_fallback=true, zero accepted codes
	{model.StatusDecodingPrimary, model.StatusManualReview}:   true, // primary-path ambiguity

	{model.StatusPreprocessed, model.StatusDecodingFallback}:  true, // requires needs_fallback=true
	{model.StatusDecodingFallback, model.StatusDecodedFallback}: true,
	{model.StatusDecodingFallback, model.StatusManualReview}:  true,
	{model.StatusDecodingFallback, model.StatusFailed}:        true,

	{model.StatusFailed, model.StatusDecodingFallback}: true, // only if fallback_attempts < 3

	{model.StatusManualReview, model.StatusDecodedManual}: true,
	{model.StatusManualReview, model.StatusFailed}:         true,
}

// Allowed reports whether from -> to is a legal transition for img,
// accounting for the guard conditions spec.md §4.2 attaches to specific
// edges (needs_fallback, fallback attempt cap).
func Allowed(img *model.Image, to model.ImageStatus) bool {
	from := img.Status
	if !transitions[edge{from, to}] {
		return false
	}
	switch {
	case from == model.StatusPreprocessed && to == model.StatusDecodingFallback:
		return img.Processing.NeedsFallback
	case from == model.StatusFailed && to == model.StatusDecodingFallback:
		return img.FallbackAttemptCount() < 3
	default:
		return true
	}
}
