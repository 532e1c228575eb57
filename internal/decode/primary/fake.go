package primary

import (
	"bytes"
	"context"
	"strings"
)

// FixtureDecoder is a deterministic Decoder used by tests in place of a
// real zbar/zxing binding. It recognizes a fixture encoding: image bytes
// that are themselves newline-separated "CODE:<raw>[:<symbology>]"
// lines, one per barcode the fixture simulates being visible in that
// rotation. Any other byte content decodes to zero results, the same
// as a real photo with no readable barcode.
type FixtureDecoder struct {
	name string
}

// NewFixtureDecoder builds a FixtureDecoder that reports decoder as
// name ("zbar" or "zxing") on every Result.
func NewFixtureDecoder(name string) *FixtureDecoder {
	return &FixtureDecoder{name: name}
}

func (d *FixtureDecoder) Decode(ctx context.Context, imageData []byte) ([]Result, error) {
	var out []Result
	for _, line := range bytes.Split(imageData, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("CODE:")) {
			continue
		}
		fields := strings.SplitN(string(line[len("CODE:"):]), ":", 2)
		res := Result{Code: fields[0], Decoder: d.name}
		if len(fields) == 2 {
			res.SymbologyGuess = fields[1]
		}
		out = append(out, res)
	}
	return out, nil
}
