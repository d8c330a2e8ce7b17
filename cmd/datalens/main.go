package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/analysis"
	"github.com/datalens-ai/datalens/internal/config"
	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/index"
	"github.com/datalens-ai/datalens/internal/llm"
	logpkg "github.com/datalens-ai/datalens/internal/logger"
	"github.com/datalens-ai/datalens/internal/metrics"
	"github.com/datalens-ai/datalens/internal/plot"
	"github.com/datalens-ai/datalens/internal/scrape"
	chiTransport "github.com/datalens-ai/datalens/internal/transport/chi"
	"github.com/datalens-ai/datalens/internal/transport/gemini"
	"github.com/datalens-ai/datalens/internal/transport/openai"
	"github.com/datalens-ai/datalens/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting datalens API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("index_store", cfg.Index.Store),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()

	ctx := context.Background()

	// Index store — composition root
	checks := make(map[string]chiTransport.HealthCheck)
	var store index.Store
	switch cfg.Index.Store {
	case "memory":
		store = index.NewMemoryStore()
	case "chromem":
		chromemStore, err := index.NewChromemStore(cfg.Index.Path)
		if err != nil {
			logger.Fatal("Failed to open chromem store", zap.Error(err))
		}
		store = chromemStore
	case "redis":
		redisStore, err := index.NewRedisStore(index.RedisConfig{
			Addrs:     cfg.Index.Addrs,
			Password:  cfg.Index.Password,
			KeyPrefix: cfg.Index.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		checks["index_store"] = redisStore.Ping
		store = redisStore
	default:
		logger.Fatal("Unknown index store", zap.String("store", cfg.Index.Store))
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	if hc, ok := embedder.(interface {
		HealthCheck(ctx context.Context) error
	}); ok {
		checks["embedding"] = hc.HealthCheck
	}

	generator, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create generator", zap.Error(err))
	}

	gateway := llm.NewGateway(generator, &llm.GatewayConfig{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		MaxRetries:   cfg.LLM.MaxRetries,
		InitialDelay: time.Duration(cfg.LLM.InitialBackoffMS) * time.Millisecond,
		Logger:       logger,
	})

	scraper := scrape.NewClient(&scrape.Config{
		Timeout:      time.Duration(cfg.Scrape.TimeoutSec) * time.Second,
		MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
		Logger:       logger,
	})

	service := analysis.NewService(&analysis.ServiceConfig{
		Searcher:      index.New(embedder, store),
		Fetcher:       scraper,
		Gateway:       gateway,
		Renderer:      plot.NewRenderer(logger),
		TopK:          cfg.Index.TopK,
		PageTextLimit: cfg.Analysis.PageTextLimit,
		Timeout:       time.Duration(cfg.Analysis.RequestTimeoutSec) * time.Second,
		Logger:        logger,
	})

	server := chiTransport.NewServer(&chiTransport.ServerConfig{
		Analysis:    service,
		Checks:      checks,
		APIKeys:     cfg.Auth.APIKeys,
		MaxUploadMB: cfg.HTTP.MaxUploadMB,
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func buildEmbedder(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openai.NewEmbedder(&openai.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		}), nil
	case "gemini":
		return gemini.NewEmbedder(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.Generator, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewGenerator(&openai.GeneratorConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			VisionModel: cfg.LLM.VisionModel,
			Logger:      logger,
		}), nil
	case "gemini":
		return gemini.NewGenerator(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.VisionModel, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
