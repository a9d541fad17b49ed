// Package generation defines the text-generation capability used by the
// question-answering pipeline and wrappers around it.
package generation

import (
	"context"
	"errors"
)

// ErrUnavailable marks failures to reach the generation backend.
var ErrUnavailable = errors.New("generation provider unavailable")

// Options are per-call sampling parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider turns a prompt into completion text.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Available(ctx context.Context) bool
}
