package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kj-assistant/kj"
)

func TestEmbedderCreation(t *testing.T) {
	e := NewEmbedder("", "nomic-embed-text", time.Minute)
	defer e.Close()
	if e.url != DefaultURL {
		t.Errorf("expected url %s, got %s", DefaultURL, e.url)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("expected model nomic-embed-text, got %s", e.Model())
	}
}

func TestEmbedCachesVectors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "m" {
			t.Errorf("model = %q, want m", req.Model)
		}
		fmt.Fprintf(w, `{"model":"m","embeddings":[[%d,0.5]]}`, len(req.Input))
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "m", time.Minute)
	defer e.Close()

	for range 2 {
		vec, err := e.Embed(context.Background(), "abc")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vec) != 2 || vec[0] != 3 || vec[1] != 0.5 {
			t.Errorf("vec = %v", vec)
		}
	}
	if _, err := e.Embed(context.Background(), "abcd"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		network bool
	}{
		{"status", http.StatusNotFound, `{"error":"model not found"}`, true},
		{"empty", http.StatusOK, `{"embeddings":[]}`, false},
		{"invalid json", http.StatusOK, `nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			e := NewEmbedder(srv.URL, "m", time.Minute)
			defer e.Close()

			_, err := e.Embed(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			var netErr *kj.NetworkError
			if got := errors.As(err, &netErr); got != tt.network {
				t.Errorf("NetworkError = %v, want %v (err: %v)", got, tt.network, err)
			}
		})
	}
}
