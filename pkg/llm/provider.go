package llm

import (
	"context"
	"errors"
)

// ErrInterrupted signals that a fragment stream terminated before the
// backend reported completion. Text already delivered stays valid.
var ErrInterrupted = errors.New("generation interrupted")

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Fragment is one incremental piece of generated text. Err is set only on
// the last fragment of an abnormally terminated stream.
type Fragment struct {
	Content string
	Err     error
}

// Option allows for optional parameters like Temperature, TopP, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithTopP(topP float64) Option {
	return func(o *Options) {
		o.TopP = topP
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream sends a chat history and returns a finite channel of
	// fragments in emission order. The channel is closed when the backend
	// signals completion or the connection drops; in the latter case the
	// final fragment carries ErrInterrupted. Cancelling ctx stops the stream.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan Fragment, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
