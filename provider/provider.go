// Package provider defines a uniform text-generation capability backed by
// hosted language model APIs, plus a deterministic mock implementation used
// for tests and as a fallback when no real provider is available.
package provider

import "context"

// Options configure a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for a generation call, when the backend
// provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of a successful generation call.
type Result struct {
	Text     string         `json:"text"`
	Usage    Usage          `json:"usage"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Provider is an external text-generation capability accessed through a
// uniform interface.
type Provider interface {
	// Name returns the provider's logical name.
	Name() string

	// GenerateText generates text for the given prompt. Failures are
	// returned as *Error with a retryability classification.
	GenerateText(ctx context.Context, prompt string, opts Options) (*Result, error)

	// IsAvailable reports whether the provider can currently serve requests.
	IsAvailable(ctx context.Context) bool
}
