// Package inference provides streaming text-completion clients for the assistant.
package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
)

// DefaultOllamaURL is the generate endpoint of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434/api/generate"

// Ollama streams completions from an Ollama /api/generate endpoint.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a client for the given endpoint and model.
// timeout bounds the whole request including the streamed body; 0 means no limit.
func NewOllama(url, modelName string, timeout time.Duration) *Ollama {
	if url == "" {
		url = DefaultOllamaURL
	}
	return &Ollama{
		url:    url,
		model:  modelName,
		client: &http.Client{Timeout: timeout},
	}
}

// Model returns the model name sent with each request.
func (o *Ollama) Model() string { return o.model }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateChunk is one line of the streamed response body.
type generateChunk struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

// Complete posts the prompt and returns a stream over the response lines.
func (o *Ollama) Complete(ctx context.Context, prompt string) (model.Stream, error) {
	data, err := json.Marshal(generateRequest{Model: o.model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send generate request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &kj.NetworkError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return &ollamaStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// ollamaStream reads one JSON object per line. Reading the next line is the
// only place it blocks.
type ollamaStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	err    error
}

func (s *ollamaStream) Recv() (string, error) {
	for s.err == nil {
		line, readErr := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				s.fail(fmt.Errorf("parse stream line: %w (line: %s)", err, line))
				break
			}
			if chunk.Error != "" {
				s.fail(fmt.Errorf("model error: %s", chunk.Error))
				break
			}
			if chunk.Done {
				s.fail(io.EOF)
			}
			if chunk.Response != nil && *chunk.Response != "" {
				return *chunk.Response, nil
			}
			continue
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.fail(io.EOF)
			} else {
				s.fail(fmt.Errorf("read stream: %w", readErr))
			}
		}
	}
	return "", s.err
}

// fail records the terminal result and releases the connection.
func (s *ollamaStream) fail(err error) {
	s.err = err
	s.body.Close()
}

func (s *ollamaStream) Close() error {
	if s.err == nil {
		s.err = io.EOF
	}
	return s.body.Close()
}
