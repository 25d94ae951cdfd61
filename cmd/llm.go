package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/llm"
)

// newGenerator builds the configured LLM backend. A missing API key yields
// an error wrapping llm.ErrNoCredential.
func newGenerator(ctx context.Context) (llm.Generator, error) {
	provider := strings.ToLower(viper.GetString("llm.provider"))
	switch provider {
	case "gemini", "":
		return llm.NewGeminiGenerator(ctx, viper.GetString("gemini.api_key"), viper.GetString("gemini.model"))
	case "anthropic", "claude":
		return llm.NewAnthropicGenerator(viper.GetString("anthropic.api_key"), viper.GetString("anthropic.model"))
	case "mock":
		return &llm.MockGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q (use: gemini, anthropic, mock)", provider)
	}
}
