package agent

import (
	"strings"
	"time"

	"github.com/partforge/partforge/pkg/apperr"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one structured invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Message is one conversation turn. The full ordered sequence is resent
// to the model every round; it is append-only within a run.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolResult pairs an invocation id with its output or error text.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TokenUsage tracks model token consumption across a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Config bounds a run. Zero values fall back to the defaults below.
type Config struct {
	Model        string        `json:"model"`
	Temperature  float64       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	MaxRounds    int           `json:"max_rounds,omitempty"`
	MaxRetries   int           `json:"max_retries,omitempty"`
	ModelTimeout time.Duration `json:"model_timeout,omitempty"`
}

// DefaultConfig returns the default run bounds: at most 10 tool rounds,
// 3 model-call attempts with exponential backoff (1s, 2s).
func DefaultConfig() Config {
	return Config{
		Model:        "claude-sonnet-4-20250514",
		Temperature:  0.2,
		MaxTokens:    4096,
		MaxRounds:    10,
		MaxRetries:   3,
		ModelTimeout: 120 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = def.MaxRounds
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = def.ModelTimeout
	}
}

// IsRetryableModelError reports whether a provider error looks transient.
// Provider SDK errors carry no structured kind, so rate limits and
// upstream 5xx are recognized by message.
func IsRetryableModelError(err error) bool {
	if err == nil {
		return false
	}
	if apperr.KindOf(err) != "" {
		return apperr.IsRetryable(err)
	}
	msg := err.Error()
	for _, marker := range []string{
		"ECONNRESET", "ETIMEDOUT", "connection reset", "timeout",
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
