package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deepnoodle-ai/taskengine/retry"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// Anthropic implements Provider for the Anthropic messages API.
type Anthropic struct {
	config Config
	client *http.Client
}

// NewAnthropic creates an Anthropic provider from a config.
func NewAnthropic(cfg Config) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Anthropic) Name() string {
	return p.config.Name
}

// IsAvailable reports whether the provider is configured with a credential.
// The messages API has no cheap health endpoint, so a real probe would cost
// a generation call.
func (p *Anthropic) IsAvailable(ctx context.Context) bool {
	return p.config.APIKey != ""
}

func (p *Anthropic) GenerateText(ctx context.Context, prompt string, opts Options) (*Result, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	payload := anthropicRequest{
		Model:       p.config.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Message: err.Error(), Wrapped: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Message: err.Error(), Wrapped: err}
	}
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{
			Provider:  p.config.Name,
			Message:   err.Error(),
			Retryable: retry.IsRecoverable(err),
			Wrapped:   err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Message: err.Error(), Retryable: true, Wrapped: err}
	}

	var decoded anthropicResponse
	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &decoded) == nil && decoded.Error != nil {
			message = decoded.Error.Message
		}
		// Anthropic reports overload as 529.
		return nil, &Error{
			Provider:   p.config.Name,
			Message:    message,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &Error{Provider: p.config.Name, Message: fmt.Sprintf("malformed response: %v", err), Retryable: true, Wrapped: err}
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &Error{Provider: p.config.Name, Message: "no text content returned", Retryable: true}
	}

	return &Result{
		Text: text.String(),
		Usage: Usage{
			PromptTokens:     decoded.Usage.InputTokens,
			CompletionTokens: decoded.Usage.OutputTokens,
			TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
		Metadata: map[string]any{
			"provider": p.config.Name,
			"model":    p.config.Model,
		},
	}, nil
}
