package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

// Generator produces chat completions via the OpenAI-compatible API.
type Generator struct {
	client      *openai.Client
	model       string
	visionModel string
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completion provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	vision := cfg.VisionModel
	if vision == "" {
		vision = cfg.Model
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		visionModel: vision,
		logger:      cfg.Logger,
	}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	return g.complete(ctx, g.model, req)
}

// Describe implements domain.Generator. The image is passed inline as a
// data URI content part.
func (g *Generator) Describe(ctx context.Context, image []byte, instruction string) (string, error) {
	uri := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	req := openai.ChatCompletionRequest{
		Model: g.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: uri},
					},
				},
			},
		},
	}
	return g.complete(ctx, g.visionModel, req)
}

func (g *Generator) complete(ctx context.Context, model string, req openai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, model, "error").Inc()
		g.logger.Warn("chat completion failed", zap.String("model", model), zap.Error(err))
		return "", fmt.Errorf("chat completion: %w: %v", domain.ErrGenerationFailed, err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(providerName, model).Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
