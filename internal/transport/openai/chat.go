package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Generator produces answer text via an OpenAI-compatible chat API
// (Groq and similar providers work through BaseURL).
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// GeneratorConfig holds the chat provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
}

// Generate runs one chat completion with a system and user message.
func (g *Generator) Generate(ctx context.Context, system, user string) (domain.GenerationResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		g.logger.Error("Chat completion failed",
			zap.String("model", g.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.GenerationResult{}, parseChatError(err)
	}

	if len(resp.Choices) == 0 {
		return domain.GenerationResult{}, fmt.Errorf("empty completion response: %w", domain.ErrLLMProviderError)
	}

	metrics.LLMTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	g.logger.Debug("Chat completion finished",
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return domain.GenerationResult{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// parseChatError maps provider failures onto the shared sentinels.
func parseChatError(err error) error {
	status := 0

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}

	if status == 429 {
		return fmt.Errorf("chat API rate limited: %w", domain.ErrRateLimited)
	}
	if status > 0 {
		return fmt.Errorf("chat API error %d: %w", status, domain.ErrLLMProviderError)
	}
	return fmt.Errorf("chat request failed: %w", domain.ErrLLMProviderError)
}
