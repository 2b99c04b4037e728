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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI implements Provider for the OpenAI chat completions API.
type OpenAI struct {
	config Config
	client *http.Client
}

// NewOpenAI creates an OpenAI provider from a config. The config should have
// defaults applied already; New does this.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAI) Name() string {
	return p.config.Name
}

// IsAvailable probes the models endpoint with the configured credential.
func (p *OpenAI) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (p *OpenAI) GenerateText(ctx context.Context, prompt string, opts Options) (*Result, error) {
	payload := openAIRequest{
		Model:       p.config.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Message: err.Error(), Wrapped: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Message: err.Error(), Wrapped: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
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

	var decoded openAIResponse
	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &decoded) == nil && decoded.Error != nil {
			message = decoded.Error.Message
		}
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
	if len(decoded.Choices) == 0 {
		return nil, &Error{Provider: p.config.Name, Message: "no completion choices returned", Retryable: true}
	}

	return &Result{
		Text:  decoded.Choices[0].Message.Content,
		Usage: decoded.Usage,
		Metadata: map[string]any{
			"provider": p.config.Name,
			"model":    p.config.Model,
		},
	}, nil
}
