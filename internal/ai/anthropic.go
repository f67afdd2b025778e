package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// AnthropicConfig configures an AnthropicRewriter.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string // empty for the public API
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// AnthropicRewriter rewrites content with the Messages API.
type AnthropicRewriter struct {
	client anthropic.Client
	cfg    AnthropicConfig
	logger *slog.Logger
}

// NewAnthropicRewriter creates a rewriter. Zero values fall back to the
// engine defaults.
func NewAnthropicRewriter(cfg AnthropicConfig, logger *slog.Logger) *AnthropicRewriter {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicRewriter{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With("component", "anthropic_rewriter", "model", cfg.Model),
	}
}

func (r *AnthropicRewriter) Provider() string { return string(ProviderAnthropic) }

// Rewrite sends one user message under systemPrompt and joins the text blocks
// of the answer.
func (r *AnthropicRewriter) Rewrite(ctx context.Context, systemPrompt, userContent string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.cfg.Model),
		MaxTokens: int64(r.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userContent)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if r.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(r.cfg.Temperature)
	}

	start := time.Now()
	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", &types.RewriteError{Provider: r.Provider(), Err: fmt.Errorf("messages: %w", err)}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", &types.RewriteError{Provider: r.Provider(), Err: ErrEmptyCompletion}
	}

	r.logger.Debug("rewrite complete",
		"chars", len(out),
		"stop_reason", msg.StopReason,
		"duration", time.Since(start),
	)
	return out, nil
}
