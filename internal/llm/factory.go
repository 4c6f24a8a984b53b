package llm

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// ProviderConfig holds the resolved provider, credentials and model choice.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // Optional model override
	BaseURL  string // Optional endpoint override (anthropic/openai only)
	Timeout  time.Duration
}

// DetectProvider resolves a provider from environment variables.
// Priority: ANTHROPIC_API_KEY > OPENAI_API_KEY > GEMINI_API_KEY.
func DetectProvider() (*ProviderConfig, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{
				Provider: p.provider,
				APIKey:   key,
			}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
}

// NewClient creates an LLM client from a provider config.
func NewClient(ctx context.Context, config *ProviderConfig) (Client, error) {
	switch config.Provider {
	case ProviderAnthropic:
		cfg := DefaultAnthropicConfig(config.APIKey)
		if config.Model != "" {
			cfg.Model = config.Model
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		if config.Timeout > 0 {
			cfg.Timeout = config.Timeout
		}
		return NewAnthropicClientWithConfig(cfg), nil

	case ProviderOpenAI:
		cfg := DefaultOpenAIConfig(config.APIKey)
		if config.Model != "" {
			cfg.Model = config.Model
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		if config.Timeout > 0 {
			cfg.Timeout = config.Timeout
		}
		return NewOpenAIClientWithConfig(cfg), nil

	case ProviderGemini:
		cfg := DefaultGeminiConfig(config.APIKey)
		if config.Model != "" {
			cfg.Model = config.Model
		}
		return NewGeminiClientWithConfig(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown provider: %s", config.Provider)
	}
}

// NewClientFromEnv creates an LLM client from environment variables.
func NewClientFromEnv(ctx context.Context) (Client, error) {
	config, err := DetectProvider()
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, config)
}
