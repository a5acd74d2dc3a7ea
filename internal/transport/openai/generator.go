package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Generator calls the generation backend over an OpenAI-compatible chat
// completion API. Resilience policy (queue, breaker, retries) is applied by
// the caller, not here.
type Generator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// GeneratorConfig holds the generation backend settings.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewGenerator creates a generation backend client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Generate implements domain.Generator: prompt in, completion out, metadata
// passed through untouched.
func (g *Generator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, parseAPIError("generation", err))
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues("error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("%w: empty completion response", domain.ErrGenerationFailed)
	}

	metrics.GenerationRequestsTotal.WithLabelValues("success").Inc()
	return domain.GenerationResult{
		Response: resp.Choices[0].Message.Content,
		Metadata: map[string]any{
			"model":         resp.Model,
			"finish_reason": string(resp.Choices[0].FinishReason),
			"prompt_tokens": resp.Usage.PromptTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		},
	}, nil
}
