package agent

import (
	"context"
	"strings"

	"github.com/partforge/partforge/pkg/apperr"
)

// LLMRequest carries one model call: the full conversation so far plus
// the tool catalog.
type LLMRequest struct {
	Model        string
	Messages     []Message
	Tools        []interface{}
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse is either a final answer (Content, no ToolCalls) or a set
// of requested tool invocations. The two are structurally distinct.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// LLMProvider is the capability interface over language model backends.
type LLMProvider interface {
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)
	Provider() string
}

// Endpoint base URLs for the OpenAI-compatible backends.
const (
	groqBaseURL     = "https://api.groq.com/openai/v1"
	lmstudioBaseURL = "http://localhost:1234/v1"
)

// NewProvider selects a provider implementation by name. groq and
// lmstudio speak the OpenAI wire protocol against their own endpoints;
// lmstudio is local and needs no key.
func NewProvider(name, apiKey, baseURL string) (LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic":
		if apiKey == "" {
			return nil, apperr.New(apperr.KindConfiguration, "anthropic api key is required")
		}
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		if apiKey == "" {
			return nil, apperr.New(apperr.KindConfiguration, "openai api key is required")
		}
		return NewOpenAIProvider("openai", apiKey, baseURL), nil
	case "groq":
		if apiKey == "" {
			return nil, apperr.New(apperr.KindConfiguration, "groq api key is required")
		}
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return NewOpenAIProvider("groq", apiKey, baseURL), nil
	case "lmstudio":
		if baseURL == "" {
			baseURL = lmstudioBaseURL
		}
		if apiKey == "" {
			apiKey = "lm-studio"
		}
		return NewOpenAIProvider("lmstudio", apiKey, baseURL), nil
	default:
		return nil, apperr.New(apperr.KindConfiguration, "unsupported llm provider: %s", name)
	}
}
