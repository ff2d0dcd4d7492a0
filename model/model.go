// Package model defines the text-completion provider used by the assistant.
//
// A provider turns one prompt into a stream of text fragments. Streams are
// read with Recv until io.EOF and cannot be restarted.
package model

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Provider produces a streamed completion for a prompt.
type Provider interface {
	// Complete opens one request for prompt. Errors that happen before the
	// first fragment, such as a non-success status, are returned here.
	Complete(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields the fragments of one completion.
type Stream interface {
	// Recv blocks until the next fragment is available. It returns io.EOF
	// after the last fragment. Once Recv has returned an error it keeps
	// returning that error.
	Recv() (string, error)
	// Close releases the underlying connection.
	Close() error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string) (Stream, error)

// Complete calls f(ctx, prompt).
func (f ProviderFunc) Complete(ctx context.Context, prompt string) (Stream, error) {
	return f(ctx, prompt)
}

// Fragments returns a stream that yields the given fragments in order.
func Fragments(fragments ...string) Stream {
	return &sliceStream{fragments: fragments}
}

type sliceStream struct {
	fragments []string
	closed    bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed || len(s.fragments) == 0 {
		return "", io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// Collect reads s to the end and returns the concatenated fragments.
// The stream is closed before returning.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(f)
	}
}
