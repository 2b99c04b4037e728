package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// MockProvider is a deterministic provider used in tests and as a fallback
// when no real provider can be resolved. The same prompt always produces the
// same response.
type MockProvider struct {
	name string
}

// NewMock returns a new MockProvider.
func NewMock() *MockProvider {
	return &MockProvider{name: "mock"}
}

func (p *MockProvider) Name() string {
	return p.name
}

func (p *MockProvider) IsAvailable(ctx context.Context) bool {
	return true
}

// GenerateText returns a canned response in the JSON shape the execution
// engine asks for.
func (p *MockProvider) GenerateText(ctx context.Context, prompt string, opts Options) (*Result, error) {
	body := map[string]any{
		"analysis":      "Mock analysis of the requested step.",
		"actions_taken": []string{"generated mock response"},
		"outputs": map[string]any{
			"result": "mock execution completed",
		},
		"confidence":      0.5,
		"recommendations": []string{},
	}
	text, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: p.name, Message: err.Error(), Retryable: false, Wrapped: err}
	}
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(text) / 4
	return &Result{
		Text: string(text),
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Metadata: map[string]any{"provider": p.name},
	}, nil
}
