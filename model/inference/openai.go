package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
)

// OpenAI streams chat completions from an OpenAI-compatible endpoint. The
// rendered prompt is sent as a single user message.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a client. baseURL is the API root (for example
// http://localhost:11434/v1); timeout 0 means no limit.
func NewOpenAI(baseURL, apiKey, modelName string, timeout time.Duration) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}
}

// Model returns the model name sent with each request.
func (o *OpenAI) Model() string { return o.model }

// Complete opens a chat completion stream for the prompt.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (model.Stream, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	}
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	err    error
}

func (s *openAIStream) Recv() (string, error) {
	for s.err == nil {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
			} else {
				s.err = convertError(err)
			}
			break
		}
		var text strings.Builder
		for _, choice := range resp.Choices {
			text.WriteString(choice.Delta.Content)
		}
		if text.Len() > 0 {
			return text.String(), nil
		}
	}
	return "", s.err
}

func (s *openAIStream) Close() error {
	if s.err == nil {
		s.err = io.EOF
	}
	return s.stream.Close()
}

// convertError maps HTTP failures reported by the client library to
// kj.NetworkError and leaves everything else wrapped as is.
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &kj.NetworkError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &kj.NetworkError{StatusCode: reqErr.HTTPStatusCode, Body: body}
	}
	return fmt.Errorf("openai stream: %w", err)
}
