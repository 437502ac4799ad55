package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractTokenPrefersAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/alerts/clear?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	if got := ExtractToken(req); got != "from-header" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestExtractTokenHeaderIsCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "BEARER  spaced-token ")
	if got := ExtractToken(req); got != "spaced-token" {
		t.Fatalf("expected trimmed token, got %q", got)
	}
}

func TestExtractTokenFallsBackToQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/overlay?token=browser-source", nil)
	if got := ExtractToken(req); got != "browser-source" {
		t.Fatalf("expected query token, got %q", got)
	}
}

func TestExtractTokenEmptyWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ExtractToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := ExtractToken(req); got != "" {
		t.Fatalf("expected non-bearer schemes ignored, got %q", got)
	}
}
