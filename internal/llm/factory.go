package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai", "azure":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - callers decide whether that is fatal
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, azure, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the runtime config sections into llm.Config
func ConfigFromModel(llmConfig model.LLMConfig, httpConfig model.HTTPConfig) Config {
	return Config{
		Provider:        llmConfig.Provider,
		Model:           llmConfig.Model,
		APIKey:          llmConfig.APIKey,
		BaseURL:         llmConfig.BaseURL,
		AzureEndpoint:   llmConfig.AzureEndpoint,
		AzureAPIVersion: llmConfig.AzureAPIVersion,
		Timeout:         llmConfig.Timeout,
		MaxTokens:       llmConfig.MaxTokens,
		HTTPProxy:       httpConfig.HTTPProxy,
		HTTPSProxy:      httpConfig.HTTPSProxy,
		NoProxy:         httpConfig.NoProxy,
	}
}
