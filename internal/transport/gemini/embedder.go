// Package gemini adapts the Google Generative AI API to the domain
// embedding and generation contracts.
package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

const providerName = "gemini"

// Embedder is an embedding provider backed by the Gemini API.
type Embedder struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewEmbedder creates a Gemini embedding provider.
func NewEmbedder(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Embedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Embedder{client: client, model: model, logger: logger}, nil
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	em := e.client.EmbeddingModel(e.model)

	start := time.Now()
	res, err := em.EmbedContent(ctx, genai.Text(text))
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("embed content: %w: %v", domain.ErrEmbeddingProvider, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProvider)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	return domain.EmbeddingResult{Embedding: res.Embedding.Values}, nil
}

// BatchEmbed implements domain.BatchEmbedder using the batch endpoint.
// The API preserves input order in its response.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	start := time.Now()
	resp, err := em.BatchEmbedContents(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w: %v", domain.ErrEmbeddingProvider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed returned %d vectors for %d inputs: %w",
			len(resp.Embeddings), len(texts), domain.ErrEmbeddingProvider,
		)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		embeddings[i] = emb.Values
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// Close releases the underlying API client.
func (e *Embedder) Close() error {
	return e.client.Close()
}
