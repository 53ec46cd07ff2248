// Package config loads and validates the partforge configuration from
// $HOME/.partforge/partforge.json and PARTFORGE_* environment variables.
package config

import (
	"fmt"
)

// Config represents the main partforge configuration
type Config struct {
	Onshape OnshapeConfig `json:"onshape" mapstructure:"onshape"`
	LLM     LLMConfig     `json:"llm" mapstructure:"llm"`
	Agent   AgentConfig   `json:"agent" mapstructure:"agent"`
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	History HistoryConfig `json:"history" mapstructure:"history"`
	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// OnshapeConfig holds CAD platform credentials and endpoint
type OnshapeConfig struct {
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Timeout   int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// LLMConfig holds language model provider configuration
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai, groq, lmstudio
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// AgentConfig bounds the tool loop
type AgentConfig struct {
	MaxRounds    int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxRetries   int    `json:"max_retries" mapstructure:"max_retries"`
	ModelTimeout int    `json:"model_timeout" mapstructure:"model_timeout"` // seconds
	ToolTimeout  int    `json:"tool_timeout" mapstructure:"tool_timeout"`   // seconds
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"` // empty uses the built-in prompt
}

// ServerConfig holds HTTP daemon configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// HistoryConfig holds the run audit store configuration
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// MemoryConfig holds part recall configuration. Recall embeds part
// descriptions through the OpenAI embeddings endpoint, so it needs an
// OpenAI key even when the chat provider is anthropic.
type MemoryConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Path           string `json:"path" mapstructure:"path"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`
	OpenAIAPIKey   string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Onshape: OnshapeConfig{
			BaseURL: "https://cad.onshape.com",
			Timeout: 30,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxRounds:    10,
			MaxRetries:   3,
			ModelTimeout: 120,
			ToolTimeout:  60,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8320,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			SweepSchedule: "@hourly",
		},
		Memory: MemoryConfig{
			Enabled:        false,
			EmbeddingModel: "text-embedding-3-small",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"groq":      true,
	"lmstudio":  true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Onshape.AccessKey == "" {
		return fmt.Errorf("onshape access key is required")
	}
	if c.Onshape.SecretKey == "" {
		return fmt.Errorf("onshape secret key is required")
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm provider %q (must be: anthropic, openai, groq, lmstudio)", c.LLM.Provider)
	}
	// lmstudio is a local endpoint and needs no key.
	if c.LLM.APIKey == "" && c.LLM.Provider != "lmstudio" {
		return fmt.Errorf("llm api_key is required for provider %s", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm temperature must be between 0 and 1, got %v", c.LLM.Temperature)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Memory.Enabled && c.Memory.OpenAIAPIKey == "" && c.LLM.Provider != "openai" {
		return fmt.Errorf("memory.openai_api_key is required when memory is enabled and the llm provider is not openai")
	}

	if c.Logging.Level != "" && !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// EmbeddingAPIKey resolves the key used for the embeddings endpoint.
func (c *Config) EmbeddingAPIKey() string {
	if c.Memory.OpenAIAPIKey != "" {
		return c.Memory.OpenAIAPIKey
	}
	if c.LLM.Provider == "openai" {
		return c.LLM.APIKey
	}
	return ""
}
