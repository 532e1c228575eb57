package model

import "time"

// DetectionSource records how a barcode candidate was produced.
type DetectionSource string

const (
	SourcePrimaryZbar   DetectionSource = "primary_zbar"
	SourcePrimaryZxing  DetectionSource = "primary_zxing" // forward-compatible slot; no worker produces this yet (spec.md §9)
	SourceFallbackGemini DetectionSource = "fallback_gemini"
	SourceManual        DetectionSource = "manual"
)

// Detection is one extracted barcode candidate for an image (spec.md §3).
type Detection struct {
	DetectionID    string
	ImageID        string
	BatchID        string
	SourceFilename string

	Code           string
	Symbology      Symbology
	NormalizedCode string

	Source          DetectionSource
	Confidence      float64
	HasConfidence   bool
	RotationDegrees int

	ChecksumValid bool
	LengthValid   bool
	NumericOnly   bool

	Ambiguous bool
	Chosen    bool
	Rejected  bool

	ProductFound bool
	ProductID    string

	GeminiConfidence     float64
	HasGeminiConfidence  bool
	GeminiSymbologyGuess string

	DetectedAt time.Time
	ReviewedAt time.Time
	ReviewedBy string
}

// Symbology mirrors barcode.Symbology without importing internal/barcode,
// keeping the model package dependency-free; handlers convert between the
// two at the boundary.
type Symbology string

const (
	SymbologyEAN13   Symbology = "EAN-13"
	SymbologyEAN8    Symbology = "EAN-8"
	SymbologyUPCA    Symbology = "UPC-A"
	SymbologyUPCE    Symbology = "UPC-E"
	SymbologyUnknown Symbology = "UNKNOWN"
)

// Accepted mirrors barcode.Reasons.Accepted for a persisted Detection.
func (d *Detection) Accepted() bool {
	return d.ChecksumValid && d.LengthValid && d.NumericOnly
}

// MarkChosen selects this detection during manual review, mirroring
// DetectionDoc.mark_chosen in src/models/detection.py.
func (d *Detection) MarkChosen(now time.Time, reviewer string) {
	d.Chosen = true
	d.Ambiguous = false
	d.ReviewedAt = now
	d.ReviewedBy = reviewer
}

// MarkRejected rejects this detection during manual review.
func (d *Detection) MarkRejected(now time.Time, reviewer string) {
	d.Rejected = true
	d.ReviewedAt = now
	d.ReviewedBy = reviewer
}
