// Package fallback is the LLM collaborator the Decode-Fallback and
// Failed-Retry handlers call into (spec.md §6 "LLM client"). GeminiClient
// is grounded on the teacher's
// _examples/fanjia1024-Aetheris/internal/model/llm/gemini.go (resty
// client, retry/timeout config, base URL override), extended per
// spec.md §6 to send inline image bytes and request the structured
// {codes: [...]} shape instead of the teacher's free-text Generate/Chat
// interface. The prompt and JSON-parsing fallback strategy are ported
// from _examples/original_source/src/llm/gemini.py's
// BARCODE_EXTRACTION_PROMPT and _extract_json.
package fallback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"barcode-pipeline/pkg/config"
	pkgerrors "barcode-pipeline/pkg/errors"
	"barcode-pipeline/pkg/metrics"
)

// Result is one barcode candidate the LLM reported.
type Result struct {
	Code           string
	SymbologyGuess string
	Confidence     float64
}

// Response is a parsed call to the LLM, with token accounting for
// spec.md §4.8's cost tracking.
type Response struct {
	Results    []Result
	TokensUsed int
}

// Client extracts barcodes from an image using a vision-capable LLM.
type Client interface {
	ExtractBarcodes(ctx context.Context, imageData []byte) (Response, error)
}

const extractionPrompt = `You are a vision model specialized in reading barcodes from images.

Analyze the product image and extract any visible linear barcodes: EAN-13,
EAN-8, UPC-A, or UPC-E. Read the digits printed under or above each
barcode; ignore unrelated numbers (prices, dates, SKUs not attached to a
barcode). Only report a code you can read with confidence; do not guess
unclear digits. If the same barcode appears more than once, report it
once with your highest confidence.

Return ONLY valid JSON matching this exact shape, nothing else:
{"codes": [{"code": "1234567890123", "symbology": "EAN-13", "confidence": 0.95}]}

If no barcode is visible, return {"codes": []}.`

// GeminiClient calls Google's Gemini generateContent endpoint.
type GeminiClient struct {
	model   string
	apiKey  string
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
}

// NewGeminiClient builds a GeminiClient from cfg, rate-limited to
// requestsPerMinute to stay under the provider's 429 threshold — the
// teacher's LLMRateLimiter (rate_limiter.go) covers multiple named
// providers; this module only ever talks to one, so a single
// golang.org/x/time/rate.Limiter suffices.
func NewGeminiClient(cfg config.GeminiConfig, requestsPerMinute float64) *GeminiClient {
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(0) // retry/backoff is the worker's job, not the transport's

	burst := int(requestsPerMinute / 60)
	if burst < 1 {
		burst = 1
	}
	return &GeminiClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60), burst),
	}
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// ExtractBarcodes submits imageData to Gemini and parses the codes it
// reports. A 429 or 5xx maps to KindRateLimit/KindTransient so the
// calling handler's retry/backoff policy (spec.md §4.8) can act on it;
// a 2xx response whose body can't be parsed as the requested JSON
// shape is KindTransient too, per spec.md §6 ("anything unparseable is
// a retriable error with backoff") rather than KindInputInvalid, since
// the fault is the model's output, not the image.
func (c *GeminiClient) ExtractBarcodes(ctx context.Context, imageData []byte) (Response, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	metrics.RateLimitWaitSeconds.WithLabelValues("gemini").Observe(time.Since(waitStart).Seconds())

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: extractionPrompt},
			{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(imageData)}},
		}}},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens:  1024,
			Temperature:      0.5,
			ResponseMimeType: "application/json",
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey))
	if err != nil {
		return Response{}, pkgerrors.WithKind(pkgerrors.Wrap(err, "call gemini"), pkgerrors.KindTransient)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return Response{}, pkgerrors.WithKind(fmt.Errorf("gemini rate limited: %s", resp.String()), pkgerrors.KindRateLimit)
	case resp.StatusCode() >= 500:
		return Response{}, pkgerrors.WithKind(fmt.Errorf("gemini server error %d: %s", resp.StatusCode(), resp.String()), pkgerrors.KindTransient)
	case resp.StatusCode() != http.StatusOK:
		return Response{}, pkgerrors.WithKind(fmt.Errorf("gemini error %d: %s", resp.StatusCode(), resp.String()), pkgerrors.KindTransient)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return Response{}, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode gemini envelope"), pkgerrors.KindTransient)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return Response{}, pkgerrors.WithKind(fmt.Errorf("gemini returned no content"), pkgerrors.KindTransient)
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	results, err := parseCodes(text)
	if err != nil {
		return Response{}, pkgerrors.WithKind(pkgerrors.Wrap(err, "parse gemini codes"), pkgerrors.KindTransient)
	}

	metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(parsed.UsageMetadata.TotalTokenCount))
	return Response{Results: results, TokensUsed: parsed.UsageMetadata.TotalTokenCount}, nil
}

type codesEnvelope struct {
	Codes []struct {
		Code       string  `json:"code"`
		Symbology  string  `json:"symbology"`
		Confidence float64 `json:"confidence"`
	} `json:"codes"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseCodes extracts the {"codes": [...]} object from text, trying a
// direct parse first and falling back to pulling the first {...} block
// out of markdown fencing or stray prose, mirroring
// src/llm/gemini.py's _extract_json strategy ladder.
func parseCodes(text string) ([]Result, error) {
	text = strings.TrimSpace(text)

	var env codesEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil {
		return toResults(env), nil
	}

	if match := jsonObjectPattern.FindString(text); match != "" {
		if err := json.Unmarshal([]byte(match), &env); err == nil {
			return toResults(env), nil
		}
	}

	return nil, fmt.Errorf("no parseable {codes: [...]} object in response")
}

func toResults(env codesEnvelope) []Result {
	out := make([]Result, 0, len(env.Codes))
	for _, c := range env.Codes {
		if strings.TrimSpace(c.Code) == "" {
			continue
		}
		out = append(out, Result{Code: c.Code, SymbologyGuess: c.Symbology, Confidence: c.Confidence})
	}
	return out
}
