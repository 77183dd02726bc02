package providers

import (
	"fmt"

	"moltbot/internal/engine"
)

// Settings selects and configures a provider backend.
type Settings struct {
	Provider string // "openai" | "anthropic" | "openrouter" | "lmstudio"
	APIKey   string
	Model    string
	BaseURL  string // optional override for OpenAI-compatible APIs
}

// NewLLMClient creates an engine.LLMClient from the given settings and
// returns it together with the resolved model name.
func NewLLMClient(s Settings) (engine.LLMClient, string, error) {
	provider := s.Provider
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		if s.APIKey == "" {
			return nil, "", fmt.Errorf("openai api key not set")
		}
		modelName := s.Model
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}
		client, err := NewOpenAIClient(s.APIKey, modelName, s.BaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, modelName, nil

	case "anthropic":
		if s.APIKey == "" {
			return nil, "", fmt.Errorf("anthropic api key not set")
		}
		modelName := s.Model
		if modelName == "" {
			modelName = "claude-sonnet-4-20250514"
		}
		client, err := NewAnthropicClient(s.APIKey, modelName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, modelName, nil

	case "openrouter":
		// OpenRouter speaks the OpenAI wire protocol.
		if s.APIKey == "" {
			return nil, "", fmt.Errorf("openrouter api key not set")
		}
		modelName := s.Model
		if modelName == "" {
			modelName = "anthropic/claude-sonnet-4"
		}
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		client, err := NewOpenAIClient(s.APIKey, modelName, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenRouter client: %w", err)
		}
		return client, modelName, nil

	case "lmstudio":
		// Local LM Studio server, no key required.
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:1234/v1"
		}
		modelName := s.Model
		if modelName == "" {
			modelName = "local-model"
		}
		apiKey := s.APIKey
		if apiKey == "" {
			apiKey = "lm-studio"
		}
		client, err := NewOpenAIClient(apiKey, modelName, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create LM Studio client: %w", err)
		}
		return client, modelName, nil

	default:
		return nil, "", fmt.Errorf("unknown llm provider: %s", provider)
	}
}
