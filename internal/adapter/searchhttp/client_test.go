package searchhttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/curatd/curatd/internal/adapter/searchhttp"
	"github.com/curatd/curatd/internal/port/indexer"
)

func TestIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/item-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPut {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", auth)
		}

		var doc indexer.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			t.Fatalf("decode document: %v", err)
		}
		if doc.Title != "Benchmarking allocation-free JSON decoding" {
			t.Fatalf("unexpected title: %q", doc.Title)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"external_url": "https://search.example.com/doc/item-1",
		})
	}))
	defer srv.Close()

	client := searchhttp.NewClient(srv.URL, "test-key")
	res, err := client.Index(context.Background(), indexer.Document{
		ContentItemID: "item-1",
		CollectionID:  "col-go",
		Title:         "Benchmarking allocation-free JSON decoding",
		Score:         9.2,
		Topics:        []string{"go", "performance"},
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	if !res.Success {
		t.Error("expected success")
	}
	if res.ExternalURL != "https://search.example.com/doc/item-1" {
		t.Errorf("external URL = %q", res.ExternalURL)
	}
}

func TestIndexUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"shard unavailable"}`))
	}))
	defer srv.Close()

	client := searchhttp.NewClient(srv.URL, "test-key")
	_, err := client.Index(context.Background(), indexer.Document{ContentItemID: "item-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
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

	client := searchhttp.NewClient(srv.URL, "test-key")
	healthy, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
}
