// Package llm wraps the completion endpoints the query stage talks to. The
// rest of the system depends only on the Completer capability: submit a
// prompt pair, receive a response string.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/faults"
)

// Completer is the capability the query stage needs. Tests inject a
// deterministic stub.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewCompleter creates a completer based on configuration. Bedrock is the
// default in deployment; the langchaingo providers cover local development.
func NewCompleter(ctx context.Context, cfg config.Config) (Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderBedrock:
		return NewBedrockCompleter(ctx, cfg.LLMModel)
	case config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderOllama:
		return newLangchainCompleter(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// langchainCompleter adapts a langchaingo model to the Completer capability.
type langchainCompleter struct {
	llm       llms.Model
	modelName string
}

func newLangchainCompleter(cfg config.Config) (*langchainCompleter, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &langchainCompleter{llm: model, modelName: cfg.LLMModel}, nil
}

// Complete generates text with a system prompt.
func (m *langchainCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w: %w", faults.ErrLLMUnavailable, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices: %w", faults.ErrLLMUnavailable)
	}
	return response.Choices[0].Content, nil
}
