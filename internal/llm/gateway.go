// Package llm wraps generation providers with retry and failure policy.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

// FallbackDescription is returned when image understanding fails.
const FallbackDescription = "No image description provided."

// GenerationError reports a generation that failed after all attempts.
type GenerationError struct {
	Attempts int
	Last     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *GenerationError) Unwrap() error { return domain.ErrGenerationFailed }

// Gateway retries transient generation failures with exponential backoff.
type Gateway struct {
	gen          domain.Generator
	provider     string
	model        string
	maxRetries   int
	initialDelay time.Duration
	logger       *zap.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// GatewayConfig holds the retry policy settings.
type GatewayConfig struct {
	Provider     string
	Model        string
	MaxRetries   int
	InitialDelay time.Duration
	Logger       *zap.Logger
}

// NewGateway creates a Gateway around a provider.
func NewGateway(gen domain.Generator, cfg *GatewayConfig) *Gateway {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &Gateway{
		gen:          gen,
		provider:     cfg.Provider,
		model:        cfg.Model,
		maxRetries:   maxRetries,
		initialDelay: delay,
		logger:       cfg.Logger,
		sleep:        sleepCtx,
	}
}

// SetSleep replaces the backoff wait. Tests use it to observe delays
// without waiting them out.
func (g *Gateway) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	g.sleep = fn
}

// GenerateWithRetry calls the provider up to maxRetries times. Empty
// output counts as a failure. The delay doubles between attempts and the
// wait aborts as soon as ctx is done.
func (g *Gateway) GenerateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := g.initialDelay

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		out, err := g.gen.Generate(ctx, prompt)
		if err == nil && out != "" {
			return out, nil
		}

		if err == nil {
			err = fmt.Errorf("empty model output")
		}
		lastErr = err
		g.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", g.maxRetries),
			zap.Error(err),
		)

		if attempt == g.maxRetries {
			break
		}
		metrics.GenerationRetriesTotal.WithLabelValues(g.provider, g.model).Inc()
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}

	return "", &GenerationError{Attempts: g.maxRetries, Last: lastErr}
}

// DescribeImage is a single best-effort attempt. Any failure degrades to
// the fixed fallback so the pipeline can proceed without the image.
func (g *Gateway) DescribeImage(ctx context.Context, image []byte, instruction string) string {
	out, err := g.gen.Describe(ctx, image, instruction)
	if err != nil || out == "" {
		g.logger.Warn("image description failed", zap.Error(err))
		return FallbackDescription
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
