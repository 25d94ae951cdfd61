package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5-20251001"

const anthropicSystemPrompt = `You are a code generation backend. Reply with a single JSON object and nothing else.`

// AnthropicGenerator generates implementations with the Anthropic Messages API.
type AnthropicGenerator struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicGenerator creates a generator with the given API key and model.
func NewAnthropicGenerator(apiKey, model string) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoCredential)
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicGenerator{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: 8192,
	}, nil
}

func (g *AnthropicGenerator) Name() string { return "anthropic:" + string(g.model) }

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
