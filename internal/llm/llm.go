package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoCredential means the selected provider has no API key configured.
	ErrNoCredential = errors.New("llm: no API key configured")
	// ErrEmptyResponse means the model replied without any text.
	ErrEmptyResponse = errors.New("llm: no text content in API response")
)

// Generator sends one prompt and returns the model's raw text reply.
// Replies are untrusted; callers must run them through the interpreter.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
