//go:build integration

package integration_test

import (
	"net/http"
	"testing"
)

func TestHealthLiveness(t *testing.T) {
	var body struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, "/health", &body); code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", code)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
}

func TestAPIVersion(t *testing.T) {
	var body struct {
		Version string `json:"version"`
	}
	if code := getJSON(t, "/api/v1/", &body); code != http.StatusOK {
		t.Fatalf("GET /api/v1/ = %d, want 200", code)
	}
	if body.Version == "" {
		t.Fatal("version missing from API root")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	if code := getJSON(t, "/api/v1/nope", nil); code != http.StatusNotFound {
		t.Fatalf("GET /api/v1/nope = %d, want 404", code)
	}
}
