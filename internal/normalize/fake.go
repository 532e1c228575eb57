package normalize

import (
	"bytes"
	"context"
	"fmt"

	pkgerrors "barcode-pipeline/pkg/errors"
)

// PassthroughNormalizer is a deterministic Normalizer used by tests. It
// performs no real image processing: each requested rotation gets the
// source bytes with a "\nROTATION:<degrees>" marker appended, which lets
// a fixture-aware Decoder (internal/decode/primary.FixtureDecoder)
// behave identically across rotations while the handler's fan-out over
// Options.Rotations is still exercised. Zero-length input is rejected
// the way a real normalizer would reject an unreadable source.
type PassthroughNormalizer struct{}

func NewPassthroughNormalizer() *PassthroughNormalizer {
	return &PassthroughNormalizer{}
}

func (n *PassthroughNormalizer) Normalize(ctx context.Context, sourceData []byte, opts Options) (Result, error) {
	if len(sourceData) == 0 {
		return Result{}, pkgerrors.WithKind(fmt.Errorf("empty source image"), pkgerrors.KindInputInvalid)
	}

	rotations := opts.Rotations
	if len(rotations) == 0 {
		rotations = []int{0}
	}

	out := Result{
		OriginalWidth:   0,
		OriginalHeight:  0,
		ProcessedWidth:  0,
		ProcessedHeight: 0,
		Grayscale:       opts.Grayscale,
		CLAHEApplied:    opts.CLAHE,
		Denoised:        opts.Denoise,
	}
	for _, deg := range rotations {
		var buf bytes.Buffer
		buf.Write(sourceData)
		fmt.Fprintf(&buf, "\nROTATION:%d", deg)
		out.Rotations = append(out.Rotations, Rotation{Degrees: deg, Data: buf.Bytes()})
	}
	return out, nil
}
