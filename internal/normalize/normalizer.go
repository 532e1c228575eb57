// Package normalize defines the external collaborator the Preprocess
// Handler calls into (spec.md §6 names it only by interface: rotate,
// grayscale, CLAHE, denoise). The real implementation is an
// image-processing pipeline out of scope for this module per spec.md
// §1's non-goals ("pixel-level preprocessing algorithms"); Normalizer
// is shaped so one can be dropped in without touching the handler.
package normalize

import "context"

// Options controls what the normalizer does to the source image,
// sourced from pkg/config's PreprocessConfig.
type Options struct {
	MaxDimension    int
	DenoiseStrength int
	Grayscale       bool
	CLAHE           bool
	Denoise         bool
	Rotations       []int // degrees; must include 0 per spec.md §4.6
}

// Rotation is one oriented variant of the normalized image.
type Rotation struct {
	Degrees int
	Data    []byte
}

// Result is everything the Preprocess Handler records on
// Image.Preprocessing plus the bytes it uploads.
type Result struct {
	Rotations       []Rotation
	OriginalWidth   int
	OriginalHeight  int
	ProcessedWidth  int
	ProcessedHeight int
	Grayscale       bool
	CLAHEApplied    bool
	Denoised        bool
}

// Normalizer turns a source image into the set of oriented, cleaned-up
// variants the primary decoder reads.
type Normalizer interface {
	Normalize(ctx context.Context, sourceData []byte, opts Options) (Result, error)
}
