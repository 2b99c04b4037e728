package provider

import "fmt"

// New creates a provider from a config. The config is defaulted and validated
// first; a config that says "enabled" but carries a bad credential surfaces
// here as a construction error, which resolution treats as unavailable.
func New(cfg Config) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAI(cfg), nil
	case TypeAnthropic:
		return NewAnthropic(cfg), nil
	case TypeMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
