// Package ai talks to the generative rewrite service.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/IshaanNene/NewsHound/internal/config"
)

// ErrEmptyCompletion is returned when the service answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Rewriter turns a system prompt and content into rewritten text. Failures are
// returned as *types.RewriteError; callers keep the original text.
type Rewriter interface {
	Rewrite(ctx context.Context, systemPrompt, userContent string) (string, error)
	Provider() string
}

// NewRewriter builds the rewriter selected by cfg.Provider. It returns nil, nil
// when rewriting is disabled.
func NewRewriter(cfg config.AIConfig, logger *slog.Logger) (Rewriter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch LLMProvider(cfg.Provider) {
	case "", ProviderAnthropic:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("ai: anthropic provider needs api_key or ANTHROPIC_API_KEY")
		}
		return NewAnthropicRewriter(AnthropicConfig{
			APIKey:      key,
			BaseURL:     cfg.Endpoint,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			MaxRetries:  2,
		}, logger), nil
	case ProviderOpenAI, ProviderOllama, ProviderCustom:
		return NewLLMClient(LLMConfig{
			Provider:    LLMProvider(cfg.Provider),
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("ai: unsupported provider %q", cfg.Provider)
	}
}
