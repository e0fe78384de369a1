package graphhttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/curatd/curatd/internal/adapter/graphhttp"
	"github.com/curatd/curatd/internal/port/indexer"
)

func TestUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/nodes/item-1" {
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
		if len(doc.Entities) != 1 || doc.Entities[0] != "encoding/json" {
			t.Fatalf("unexpected entities: %v", doc.Entities)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	client := graphhttp.NewClient(srv.URL, "test-key")
	res, err := client.Update(context.Background(), indexer.Document{
		ContentItemID: "item-1",
		CollectionID:  "col-go",
		Topics:        []string{"go"},
		Entities:      []string{"encoding/json"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if !res.Success {
		t.Error("expected success")
	}
}

func TestUpdateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"graph store unreachable"}`))
	}))
	defer srv.Close()

	client := graphhttp.NewClient(srv.URL, "test-key")
	_, err := client.Update(context.Background(), indexer.Document{ContentItemID: "item-1"})
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

	client := graphhttp.NewClient(srv.URL, "test-key")
	healthy, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
}
