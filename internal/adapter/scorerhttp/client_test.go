package scorerhttp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/adapter/scorerhttp"
	"github.com/curatd/curatd/internal/port/scorer"
	"github.com/curatd/curatd/internal/resilience"
)

func TestAssess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assessments" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", auth)
		}

		var req scorer.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ContentItemID != "item-1" {
			t.Fatalf("unexpected content item: %q", req.ContentItemID)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"score":     9.2,
			"topics":    []string{"go", "performance"},
			"entities":  []string{"encoding/json"},
			"rationale": "matches collection criteria closely",
		})
	}))
	defer srv.Close()

	client := scorerhttp.NewClient(srv.URL, "test-key")
	got, err := client.Assess(context.Background(), scorer.Request{
		ContentItemID: "item-1",
		CollectionID:  "col-go",
		Title:         "Benchmarking allocation-free JSON decoding",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if got.Score != 9.2 {
		t.Errorf("score = %v, want 9.2", got.Score)
	}
	if len(got.Topics) != 2 || got.Topics[0] != "go" {
		t.Errorf("topics = %v", got.Topics)
	}
	if got.AssessedAt.IsZero() {
		t.Error("AssessedAt was not stamped")
	}
}

func TestAssessUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	client := scorerhttp.NewClient(srv.URL, "test-key")
	_, err := client.Assess(context.Background(), scorer.Request{ContentItemID: "item-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAssessBreakerOpens(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := scorerhttp.NewClient(srv.URL, "test-key")
	client.SetBreaker(resilience.NewBreaker("scorer", 3, time.Minute))

	for range 3 {
		if _, err := client.Assess(context.Background(), scorer.Request{ContentItemID: "item-1"}); err == nil {
			t.Fatal("expected error while breaker is closing in")
		}
	}

	// Circuit is open now: the next call is rejected without reaching the server.
	_, err := client.Assess(context.Background(), scorer.Request{ContentItemID: "item-1"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if hits != 3 {
		t.Errorf("server hit %d times, want 3", hits)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	client := scorerhttp.NewClient(srv.URL, "test-key")
	healthy, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
}

func TestHealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unhealthy"}`))
	}))
	defer srv.Close()

	client := scorerhttp.NewClient(srv.URL, "test-key")
	healthy, _ := client.Health(context.Background())
	if healthy {
		t.Fatal("expected unhealthy")
	}
}
