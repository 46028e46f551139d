package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main recall configuration
type Config struct {
	// Database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Recall / orchestration behavior
	Recall RecallConfig `json:"recall" mapstructure:"recall"`

	// Reply-generation provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Bulk import
	Import ImportConfig `json:"import" mapstructure:"import"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig holds SQLite store configuration
type DatabaseConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	BusyTimeoutMS int    `json:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	MaxOpenConns  int    `json:"max_open_conns" mapstructure:"max_open_conns"`
}

// RecallConfig holds retrieval and orchestration settings
type RecallConfig struct {
	TopK int `json:"top_k" mapstructure:"top_k"`

	// SummarizeEvery triggers a session summary every N turns. Negative
	// disables turn-triggered summarization; 0 means the built-in default.
	SummarizeEvery   int  `json:"summarize_every" mapstructure:"summarize_every"`
	GenerateTimeoutS int  `json:"generate_timeout_s" mapstructure:"generate_timeout_s"`
	CrossSession     bool `json:"cross_session" mapstructure:"cross_session"`
}

// ProviderConfig holds LLM provider configuration
type ProviderConfig struct {
	Name        string  `json:"name" mapstructure:"name"` // "anthropic" or "openai"
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// ImportConfig holds bulk import settings
type ImportConfig struct {
	// WatchDir, when set, is watched for dropped *.jsonl files to import.
	WatchDir string `json:"watch_dir" mapstructure:"watch_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Database: DatabaseConfig{
			Path:          filepath.Join(home, ".recall", "recall.db"),
			BusyTimeoutMS: 5000,
			MaxOpenConns:  4,
		},
		Recall: RecallConfig{
			TopK:             4,
			SummarizeEvery:   20,
			GenerateTimeoutS: 60,
			CrossSession:     true,
		},
		Provider: ProviderConfig{
			Name:        "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// Save writes the configuration to a file as indented JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
