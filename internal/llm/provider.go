// Package llm abstracts the language model provider used by the parse
// pipeline, form filling and the chatbot.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for LLM operations.
var (
	// ErrNotConfigured means no provider credentials were supplied.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrEmptyResponse means the provider returned no choices.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// ChatOptions tunes a completion request. A zero Temperature is
// meaningful (deterministic extraction), so the field is a pointer on
// the wire but plain here; callers always set it explicitly.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is a chat-capable language model backend.
type Provider interface {
	// ChatCompletion runs a chat completion and returns the assistant
	// message content.
	ChatCompletion(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// VisionAnalysis sends a base64-encoded PNG together with a prompt
	// and returns the model's textual answer.
	VisionAnalysis(ctx context.Context, imageBase64, prompt string) (string, error)

	// Name identifies the provider for health reporting.
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai"

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			return nil, ErrNotConfigured
		}
		return NewOpenAI(OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
