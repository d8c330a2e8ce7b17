package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

// Generator produces completions via the Gemini API.
type Generator struct {
	client      *genai.Client
	model       string
	visionModel string
	logger      *zap.Logger
}

// NewGenerator creates a Gemini generation provider. visionModel falls
// back to model when empty.
func NewGenerator(ctx context.Context, apiKey, model, visionModel string, logger *zap.Logger) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if visionModel == "" {
		visionModel = model
	}
	return &Generator{client: client, model: model, visionModel: visionModel, logger: logger}, nil
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, g.model, genai.Text(prompt))
}

// Describe implements domain.Generator. The image is passed inline as a
// binary part alongside the instruction.
func (g *Generator) Describe(ctx context.Context, image []byte, instruction string) (string, error) {
	format := strings.TrimPrefix(http.DetectContentType(image), "image/")
	return g.generate(ctx, g.visionModel, genai.Text(instruction), genai.ImageData(format, image))
}

func (g *Generator) generate(ctx context.Context, model string, parts ...genai.Part) (string, error) {
	gm := g.client.GenerativeModel(model)

	start := time.Now()
	resp, err := gm.GenerateContent(ctx, parts...)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, model, "error").Inc()
		g.logger.Warn("generate content failed", zap.String("model", model), zap.Error(err))
		return "", fmt.Errorf("generate content: %w: %v", domain.ErrGenerationFailed, err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(providerName, model).Observe(duration.Seconds())

	return collectText(resp), nil
}

// collectText joins all text parts of the first candidate.
func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Close releases the underlying API client.
func (g *Generator) Close() error {
	return g.client.Close()
}
