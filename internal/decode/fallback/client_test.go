package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodes_DirectJSON(t *testing.T) {
	results, err := parseCodes(`{"codes": [{"code": "4006381333931", "symbology": "EAN-13", "confidence": 0.95}]}`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "4006381333931", results[0].Code)
	assert.Equal(t, "EAN-13", results[0].SymbologyGuess)
	assert.InDelta(t, 0.95, results[0].Confidence, 0.0001)
}

func TestParseCodes_EmptyArray(t *testing.T) {
	results, err := parseCodes(`{"codes": []}`)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseCodes_MarkdownFenced(t *testing.T) {
	results, err := parseCodes("```json\n{\"codes\": [{\"code\": \"12345678\", \"symbology\": \"EAN-8\", \"confidence\": 0.8}]}\n```")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "12345678", results[0].Code)
}

func TestParseCodes_Unparseable(t *testing.T) {
	_, err := parseCodes("the model refused to answer")
	assert.Error(t, err)
}

func TestParseCodes_SkipsBlankCode(t *testing.T) {
	results, err := parseCodes(`{"codes": [{"code": "", "symbology": "EAN-13", "confidence": 0.5}]}`)
	require.NoError(t, err)
	assert.Empty(t, results)
}
