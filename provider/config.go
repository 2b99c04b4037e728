package provider

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported provider types.
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
	TypeMock      = "mock"
)

// Config describes one candidate provider. Configs are static or externally
// supplied; the execution engine never mutates them.
type Config struct {
	Name       string        `json:"name" yaml:"name"`
	Type       string        `json:"type" yaml:"type"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Priority   int           `json:"priority" yaml:"priority"`
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SetDefaults fills zero-valued fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = c.Type
	}
	if c.Model == "" {
		switch c.Type {
		case TypeOpenAI:
			c.Model = "gpt-4o"
		case TypeAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeOpenAI, TypeAnthropic:
		if c.APIKey == "" {
			return fmt.Errorf("provider %q: api key required", c.Name)
		}
	case TypeMock:
	case "":
		return fmt.Errorf("provider %q: type required", c.Name)
	default:
		return fmt.Errorf("provider %q: unsupported type %q", c.Name, c.Type)
	}
	return nil
}

type configFile struct {
	Providers []Config `yaml:"providers"`
}

// LoadFile loads provider configs from a YAML file.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads provider configs from a YAML string.
func LoadString(data string) ([]Config, error) {
	var file configFile
	if err := yaml.Unmarshal([]byte(data), &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider config: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return file.Providers, nil
}
