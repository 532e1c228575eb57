// Package primary defines the collaborator the Decode-Primary Handler
// calls into (spec.md §6 "Primary decoder"). The real implementation is
// a CGO binding to zbar or zxing, out of scope for this module per
// spec.md §1's non-goals; Decoder is shaped so such a binding can be
// dropped in without touching the handler.
package primary

import "context"

// Result is one raw code a decoder found in a rotation of the image,
// before validation/normalization.
type Result struct {
	Code           string
	SymbologyGuess string
	Decoder        string // "zbar" or "zxing"
}

// Decoder extracts raw barcode strings from one orientation of an
// image. Handlers call it once per generated rotation (spec.md §4.7).
type Decoder interface {
	Decode(ctx context.Context, imageData []byte) ([]Result, error)
}
