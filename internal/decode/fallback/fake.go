package fallback

import (
	"bytes"
	"context"
	"strconv"
	"strings"
)

// FixtureClient is a deterministic Client used by tests in place of a
// real Gemini call. It recognizes "CODE:<raw>[:<symbology>[:<confidence>]]"
// fixture lines, a superset of the "CODE:<raw>[:<symbology>]" lines
// primary.FixtureDecoder reads, so handler tests can drive both decoders
// off the same fixture bytes.
type FixtureClient struct {
	TokensPerCall int
}

// NewFixtureClient builds a FixtureClient that reports tokensPerCall on
// every response, simulating Gemini's usage accounting.
func NewFixtureClient(tokensPerCall int) *FixtureClient {
	return &FixtureClient{TokensPerCall: tokensPerCall}
}

func (c *FixtureClient) ExtractBarcodes(ctx context.Context, imageData []byte) (Response, error) {
	var results []Result
	for _, line := range bytes.Split(imageData, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("CODE:")) {
			continue
		}
		fields := strings.Split(string(line[len("CODE:"):]), ":")
		res := Result{Code: fields[0], Confidence: 0.9}
		if len(fields) > 1 {
			res.SymbologyGuess = fields[1]
		}
		if len(fields) > 2 {
			if conf, err := strconv.ParseFloat(fields[2], 64); err == nil {
				res.Confidence = conf
			}
		}
		results = append(results, res)
	}
	return Response{Results: results, TokensUsed: c.TokensPerCall}, nil
}
