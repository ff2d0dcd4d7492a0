// Package embedding generates vector embeddings through an Ollama /api/embed endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/kj-assistant/kj"
)

// DefaultURL is the embed endpoint of a local Ollama server.
const DefaultURL = "http://localhost:11434/api/embed"

// Embedder generates embeddings and keeps recent vectors in memory.
type Embedder struct {
	url    string
	model  string
	client *http.Client
	cache  *ttlcache.Cache[string, []float32]
}

// NewEmbedder creates an embedder for the given endpoint. Vectors are cached
// per input text for ttl. Call Close to stop the cache expiration loop.
func NewEmbedder(url, model string, ttl time.Duration) *Embedder {
	if url == "" {
		url = DefaultURL
	}
	c := ttlcache.New[string, []float32](
		ttlcache.WithTTL[string, []float32](ttl),
		ttlcache.WithDisableTouchOnHit[string, []float32](),
	)
	go c.Start()
	return &Embedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  c,
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if item := e.cache.Get(text); item != nil {
		return item.Value(), nil
	}

	data, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &kj.NetworkError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w (body: %s)", err, string(body))
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := result.Embeddings[0]
	e.cache.Set(text, vec, ttlcache.DefaultTTL)
	return vec, nil
}

// Close stops the cache expiration loop.
func (e *Embedder) Close() {
	e.cache.Stop()
}
