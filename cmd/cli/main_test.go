package main

import (
	"strings"
	"testing"
)

func TestPrettyJSON(t *testing.T) {
	out := prettyJSON(map[string]interface{}{"status": "manual_review", "count": 2})
	if !strings.Contains(out, `"status": "manual_review"`) {
		t.Fatalf("prettyJSON missing status field: %s", out)
	}
	if !strings.Contains(out, "\n") {
		t.Fatalf("prettyJSON should indent across lines: %s", out)
	}
}

func TestApiBaseURL_Default(t *testing.T) {
	t.Setenv("BARCODE_API_URL", "")
	if got := apiBaseURL(); got != "http://localhost:8000" {
		t.Fatalf("apiBaseURL() = %q, want default", got)
	}
}

func TestApiBaseURL_Override(t *testing.T) {
	t.Setenv("BARCODE_API_URL", "http://review.internal:9000")
	if got := apiBaseURL(); got != "http://review.internal:9000" {
		t.Fatalf("apiBaseURL() = %q, want override", got)
	}
}
