// Package model holds the durable record types that travel through the
// pipeline: Image, Detection and Job. Field shapes follow spec.md §3,
// with the per-stage bookkeeping (PreprocessingInfo, ProcessingInfo,
// DecoderAttempt, ProcessingError) grounded on
// _examples/original_source/src/models/image.py.
package model

import "time"

// ImageStatus is one of the states in the per-image status machine
// (spec.md §4.2). Transitions are enforced by internal/statemachine, not
// by this type.
type ImageStatus string

const (
	StatusPending            ImageStatus = "pending"
	StatusPreprocessing      ImageStatus = "preprocessing"
	StatusPreprocessed       ImageStatus = "preprocessed"
	StatusDecodingPrimary    ImageStatus = "decoding_primary"
	StatusDecodedPrimary     ImageStatus = "decoded_primary"
	StatusDecodingFallback   ImageStatus = "decoding_fallback"
	StatusDecodedFallback    ImageStatus = "decoded_fallback"
	StatusManualReview       ImageStatus = "manual_review"
	StatusDecodedManual      ImageStatus = "decoded_manual"
	StatusFailed             ImageStatus = "failed"
)

// DecoderAttempt records one decode attempt, primary or fallback.
type DecoderAttempt struct {
	Decoder       string // "zbar", "zxing", "gemini"
	AttemptNumber int
	Success       bool
	CodesFound    int
	DurationMS    int
	Timestamp     time.Time
	Error         string
}

// ProcessingError is one entry in Image.Processing.Errors, per spec.md §7.
type ProcessingError struct {
	Stage     string
	Message   string
	Timestamp time.Time
	Details   map[string]string
}

// PreprocessingInfo records what the external normalizer produced.
type PreprocessingInfo struct {
	NormalizedPath    string
	OriginalWidth     int
	OriginalHeight    int
	ProcessedWidth    int
	ProcessedHeight   int
	Grayscale         bool
	CLAHEApplied      bool
	Denoised          bool
	RotationsGenerated []int
	DurationMS        int
	CompletedAt       time.Time
}

// ProcessingInfo accumulates decode attempts and error history.
type ProcessingInfo struct {
	PrimaryAttempts  []DecoderAttempt
	FallbackAttempts []DecoderAttempt
	NeedsFallback    bool
	GeminiTokensUsed int
	Errors           []ProcessingError
}

// Image is the unit traversing the pipeline (spec.md §3).
type Image struct {
	ImageID  string
	BatchID  string

	SourcePath     string
	SourceFilename string
	ExternalID     string

	Status          ImageStatus
	StatusUpdatedAt time.Time

	Preprocessing PreprocessingInfo
	Processing    ProcessingInfo

	FinalBlobPath   string
	DetectionCount  int

	ContentType   string
	FileSizeBytes int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateStatus advances status and bumps both timestamps, mirroring
// ImageDoc.update_status in src/models/image.py.
func (img *Image) UpdateStatus(now time.Time, next ImageStatus) {
	img.Status = next
	img.StatusUpdatedAt = now
	img.UpdatedAt = now
}

// AddError appends a processing error and bumps UpdatedAt.
func (img *Image) AddError(now time.Time, stage, message string, details map[string]string) {
	img.Processing.Errors = append(img.Processing.Errors, ProcessingError{
		Stage:     stage,
		Message:   message,
		Timestamp: now,
		Details:   details,
	})
	img.UpdatedAt = now
}

// AddDecoderAttempt records an attempt in the primary or fallback list
// and bumps UpdatedAt, mirroring ImageDoc.add_decoder_attempt.
func (img *Image) AddDecoderAttempt(now time.Time, decoder string, success bool, isFallback bool, codesFound int, durationMS int, errMsg string) {
	attempts := &img.Processing.PrimaryAttempts
	if isFallback {
		attempts = &img.Processing.FallbackAttempts
	}
	*attempts = append(*attempts, DecoderAttempt{
		Decoder:       decoder,
		AttemptNumber: len(*attempts) + 1,
		Success:       success,
		CodesFound:    codesFound,
		DurationMS:    durationMS,
		Timestamp:     now,
		Error:         errMsg,
	})
	img.UpdatedAt = now
}

// FallbackAttemptCount reports how many fallback/gemini attempts have run,
// the quantity spec.md §4.9 and §8 cap at 3.
func (img *Image) FallbackAttemptCount() int {
	return len(img.Processing.FallbackAttempts)
}

// LastFallbackAttemptAt returns the timestamp of the most recent fallback
// attempt, or StatusUpdatedAt if none has run yet — the Dispatcher's
// basis for spec.md §4.5's "last_attempt_age > retry_delay" guard on
// re-enqueuing a failed image for another fallback decode.
func (img *Image) LastFallbackAttemptAt() time.Time {
	attempts := img.Processing.FallbackAttempts
	if len(attempts) == 0 {
		return img.StatusUpdatedAt
	}
	return attempts[len(attempts)-1].Timestamp
}
