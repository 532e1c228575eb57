package barcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := map[string]Symbology{
		"8011642115887": EAN13,
		"40063813":       EAN8,
		"036000291452":   UPCA,
		"425261":         UPCE,
		"4252614":        UPCE,
		"abc123":         Unknown,
		"12345":          Unknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Detect(raw), "raw=%s", raw)
	}
}

func TestClassifyEAN13Valid(t *testing.T) {
	sym, reasons := Classify("8011642115887")
	require.Equal(t, EAN13, sym)
	assert.True(t, reasons.NumericOnly)
	assert.True(t, reasons.LengthValid)
	assert.True(t, reasons.ChecksumValid)
	assert.True(t, reasons.Accepted())
}

func TestClassifyEAN13Invalid(t *testing.T) {
	_, reasons := Classify("8011642115888")
	assert.False(t, reasons.ChecksumValid)
	assert.False(t, reasons.Accepted())
}

func TestClassifyUPCA(t *testing.T) {
	sym, reasons := Classify("036000291452")
	require.Equal(t, UPCA, sym)
	assert.True(t, reasons.Accepted())
}

func TestNormalizeUPCAPrependsZero(t *testing.T) {
	norm := Normalize("036000291452", UPCA)
	assert.Equal(t, "0036000291452", norm)
	assert.True(t, Checksum(norm))
}

func TestNormalizeEAN13PassThrough(t *testing.T) {
	assert.Equal(t, "8011642115887", Normalize("8011642115887", EAN13))
}

func TestNormalizeEAN8NoUpconversion(t *testing.T) {
	assert.Equal(t, "40063813", Normalize("40063813", EAN8))
}

// Validator round-trip property from spec.md §8: for every valid EAN-13 e,
// checksum(e)=true and normalize(e, EAN-13)=e; for every valid UPC-A u,
// normalize(u, UPC-A) = "0"+u and checksum("0"+u)=true.
func TestRoundTripProperty(t *testing.T) {
	validEAN13 := []string{"8011642115887", "4006381333931"}
	for _, e := range validEAN13 {
		assert.True(t, Checksum(e), "e=%s", e)
		assert.Equal(t, e, Normalize(e, EAN13))
	}

	validUPCA := []string{"036000291452"}
	for _, u := range validUPCA {
		norm := Normalize(u, UPCA)
		assert.Equal(t, "0"+u, norm)
		assert.True(t, Checksum(norm))
	}
}

func TestNormalizeUPCEExpandsThenPrepends(t *testing.T) {
	norm := Normalize("0425261", UPCE)
	require.Len(t, norm, 13)
	assert.Equal(t, byte('0'), norm[0])
}

func TestDedupPreservesOrderAndUniqueness(t *testing.T) {
	got := Dedup([]string{"8011642115887", "4006381333931", "8011642115887", ""})
	assert.Equal(t, []string{"8011642115887", "4006381333931"}, got)
}

func TestChecksumRejectsNonNumeric(t *testing.T) {
	assert.False(t, Checksum("80116421a5887"))
}
