package kj

import (
	"errors"
	"fmt"
)

// Sentinel errors. They are wrapped with the offending path or detail,
// so callers match them with errors.Is.
var (
	// ErrStorage means the storage directory is missing, unreadable or unwritable.
	ErrStorage = errors.New("session storage unavailable")
	// ErrNotFound means no session file exists for the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrFormat means a session document does not have the expected shape.
	ErrFormat = errors.New("malformed session document")
	// ErrEnvironment means the shell history variable is absent or unparsable.
	ErrEnvironment = errors.New("shell environment unavailable")
)

// NetworkError is returned when the model endpoint answers with a non-success status.
type NetworkError struct {
	StatusCode int
	Body       string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.StatusCode, e.Body)
}
