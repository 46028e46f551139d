package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the whole configuration
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if cfg.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy timeout cannot be negative")
	}
	if cfg.Database.MaxOpenConns < 1 {
		return fmt.Errorf("max open connections must be at least 1")
	}

	if cfg.Recall.TopK < 1 {
		return fmt.Errorf("recall top_k must be at least 1")
	}
	if cfg.Recall.GenerateTimeoutS < 1 {
		return fmt.Errorf("generate timeout must be at least 1 second")
	}

	if err := v.ValidateProviderName(cfg.Provider.Name); err != nil {
		return err
	}
	if cfg.Provider.Model == "" {
		return fmt.Errorf("provider model cannot be empty")
	}

	return nil
}

// ValidateProviderName validates a provider name
func (v *Validator) ValidateProviderName(name string) error {
	switch name {
	case "anthropic", "openai":
		return nil
	case "":
		return fmt.Errorf("provider name cannot be empty")
	default:
		return fmt.Errorf("unsupported provider: %s", name)
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
