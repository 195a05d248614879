// Package llm defines the text-generation backend contract used by the
// generation workflow.
package llm

import (
	"context"
)

// Message is a chat message in a provider-agnostic format.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Option sets optional request parameters.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the backend's default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// Apply folds opts over defaults.
func Apply(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// Provider is any text-generation backend. Failures of a remote call are
// returned as *domain.ProviderError.
type Provider interface {
	Name() string
	// Chat sends a chat history to the model and returns the reply.
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)
	// Generate sends a single user prompt.
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// User wraps prompt as a single-message history.
func User(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}
