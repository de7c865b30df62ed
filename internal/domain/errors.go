package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuestion signals a blank user question.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound signals a missing library item.
	ErrNotFound = errors.New("not found")
	// ErrUpstream signals a library API failure (transport error or non-2xx status).
	ErrUpstream = errors.New("library api error")
	// ErrCompletionProvider signals a language model provider failure.
	ErrCompletionProvider = errors.New("completion provider error")
)

// UpstreamStatusError wraps ErrUpstream with the HTTP status returned by the library API.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", ErrUpstream.Error(), e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrUpstream.Error(), e.StatusCode, e.Body)
}

func (e *UpstreamStatusError) Unwrap() error { return ErrUpstream }

// NewUpstreamStatus creates an upstream status error. Body is truncated to keep logs bounded.
func NewUpstreamStatus(status int, body string) error {
	const maxBody = 500
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &UpstreamStatusError{StatusCode: status, Body: body}
}
