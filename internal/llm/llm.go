// Package llm adapts hosted language models to a small text-in, text-out interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured is returned when a provider is missing its credential or endpoint.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrEmptyResponse is returned when the provider answered without any text.
	ErrEmptyResponse = errors.New("llm response missing text")
)

// Generator produces a complete reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Streamer yields a reply incrementally. fn is called once per text delta;
// a non-nil error from fn stops the stream and is returned.
type Streamer interface {
	Stream(ctx context.Context, prompt string, fn func(delta string) error) error
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request status %d: %s", e.Provider, e.Status, e.Body)
}

// readStatusError consumes at most 4 KiB of an error body.
func readStatusError(provider string, res *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err != nil {
		return fmt.Errorf("read %s error body: %w", provider, err)
	}
	return &StatusError{Provider: provider, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}
