package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/vidqa/config"
)

// LLMProvider defines the contract for language-model providers.
type LLMProvider interface {
	// Generate generates a completion for prompt using the named model.
	Generate(ctx context.Context, prompt string, model string) (string, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// NewLLMProvider builds a provider from config.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	switch cfg.Type {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key not configured")
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}
