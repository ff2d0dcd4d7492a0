package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
)

func ndjsonServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaRequestBody(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2-vision:latest", 0)
	stream, err := o.Complete(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer stream.Close()
	if _, err := model.Collect(stream); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := generateRequest{Model: "llama3.2-vision:latest", Prompt: "the prompt", Stream: true}
	if got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
}

func TestOllamaFragmentsInOrder(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"Hel","done":false}`,
		``,
		`{"response":"","done":false}`,
		`{"response":"lo","done":false}`,
		`{"response":"!","done":true,"context":[1,2,3]}`,
		`{"response":"ignored","done":false}`,
	)

	stream, err := NewOllama(srv.URL, "m", 0).Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer stream.Close()

	var fragments []string
	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		fragments = append(fragments, f)
	}
	if got := strings.Join(fragments, "|"); got != "Hel|lo|!" {
		t.Errorf("fragments = %q, want %q", got, "Hel|lo|!")
	}

	// The stream stays finished.
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv after end = %v, want io.EOF", err)
	}
}

func TestOllamaBodyEndsWithoutDone(t *testing.T) {
	srv := ndjsonServer(t, `{"response":"partial","done":false}`)

	stream, err := NewOllama(srv.URL, "m", 0).Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := model.Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got != "partial" {
		t.Errorf("got %q, want %q", got, "partial")
	}
}

func TestOllamaStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"invalid json", []string{`{"response":"a"}`, `not json`}, "parse stream line"},
		{"error field", []string{`{"error":"model not found"}`}, "model not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ndjsonServer(t, tt.lines...)
			stream, err := NewOllama(srv.URL, "m", 0).Complete(context.Background(), "p")
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			defer stream.Close()

			_, err = model.Collect(stream)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Collect error = %v, want containing %q", err, tt.want)
			}
			if _, again := stream.Recv(); again == nil || again.Error() != err.Error() {
				t.Errorf("error not sticky: %v", again)
			}
		})
	}
}

func TestOllamaNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "nope", 0).Complete(context.Background(), "p")
	var netErr *kj.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *kj.NetworkError", err)
	}
	if netErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", netErr.StatusCode)
	}
	if !strings.Contains(netErr.Body, "not found") {
		t.Errorf("Body = %q", netErr.Body)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllama(url, "m", time.Second).Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	var netErr *kj.NetworkError
	if errors.As(err, &netErr) {
		t.Errorf("connection failure reported as status error: %v", netErr)
	}
}

func TestOllamaCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"first","done":false}`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewOllama(srv.URL, "m", 0).Complete(ctx, "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer stream.Close()

	if f, err := stream.Recv(); err != nil || f != "first" {
		t.Fatalf("Recv = %q, %v", f, err)
	}
	cancel()
	if _, err := stream.Recv(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("Recv after cancel = %v, want a read error", err)
	}
}

func TestNewOllamaDefaultURL(t *testing.T) {
	o := NewOllama("", "m", 0)
	if o.url != DefaultOllamaURL {
		t.Errorf("url = %q, want %q", o.url, DefaultOllamaURL)
	}
	if o.Model() != "m" {
		t.Errorf("Model() = %q", o.Model())
	}
}
