package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/chunker"
	"github.com/fyrsmithlabs/bellaqa/internal/config"
	"github.com/fyrsmithlabs/bellaqa/internal/embeddings"
	"github.com/fyrsmithlabs/bellaqa/internal/generation"
	"github.com/fyrsmithlabs/bellaqa/internal/indexer"
	"github.com/fyrsmithlabs/bellaqa/internal/logging"
	"github.com/fyrsmithlabs/bellaqa/internal/telemetry"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
)

// app holds what every command needs: configuration, the logger and the
// telemetry providers.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// setup loads configuration and initializes logging and telemetry.
// Every failure is a configuration error.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tc := telemetry.NewDefaultConfig()
	tc.ServiceVersion = version
	if err := cfg.Unmarshal("telemetry", tc); err != nil {
		return nil, apperr.Configuration("setup", err)
	}
	tel, err := telemetry.New(ctx, tc)
	if err != nil {
		return nil, apperr.Configuration("setup", err)
	}

	lc := logging.NewDefaultConfig()
	if err := cfg.Unmarshal("logging", lc); err != nil {
		return nil, apperr.Configuration("setup", err)
	}
	var lp log.LoggerProvider
	if tel.IsEnabled() {
		lp = tel.LoggerProvider()
	}
	logger, err := logging.NewLogger(lc, lp)
	if err != nil {
		return nil, apperr.Configuration("setup", fmt.Errorf("initializing logger: %w", err))
	}

	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.String("reason", health.Reason))
	}
	logger.Debug(ctx, "configuration loaded", configFields(cfg)...)

	return &app{cfg: cfg, logger: logger, telemetry: tel}, nil
}

// close flushes telemetry and the logger. It is safe on a nil app.
func (a *app) close() {
	if a == nil {
		return
	}
	if err := a.telemetry.Shutdown(context.Background()); err != nil {
		a.logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on exit
}

// configFields summarizes the loaded configuration for the startup log.
func configFields(cfg *config.Config) []zap.Field {
	return []zap.Field{
		zap.String("embeddings.provider", cfg.Embeddings.Provider),
		zap.String("embeddings.model", cfg.Embeddings.Model),
		logging.Secret("embeddings.api_key", cfg.Embeddings.APIKey),
		zap.String("generation.provider", cfg.Generation.Provider),
		zap.String("generation.model", cfg.Generation.Model),
		logging.Secret("generation.api_key", cfg.Generation.APIKey),
		zap.String("index.path", cfg.Index.Path),
		zap.Int("retrieval.top_k", cfg.Retrieval.TopK),
	}
}

// newEmbedder builds the batched, rate-limited embedding service.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (*embeddings.Service, error) {
	ec := cfg.Embeddings
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  ec.Provider,
		Model:     ec.Model,
		BaseURL:   ec.BaseURL,
		APIKey:    ec.APIKey.Value(),
		BatchSize: ec.BatchSize,
		CacheDir:  ec.CacheDir,
	})
	if err != nil {
		return nil, apperr.Configuration("embeddings", err)
	}

	svc, err := embeddings.NewService(provider, embeddings.Config{
		BatchSize: ec.BatchSize,
		RateLimit: ec.RateLimit,
		Burst:     ec.Burst,
	}, logger)
	if err != nil {
		_ = provider.Close()
		return nil, apperr.Configuration("embeddings", err)
	}
	return svc, nil
}

// newGenerator builds the language model client.
func newGenerator(cfg *config.Config, logger *zap.Logger) (*generation.Client, error) {
	gc := cfg.Generation
	client, err := generation.NewClient(generation.Config{
		Provider:    gc.Provider,
		BaseURL:     gc.BaseURL,
		Model:       gc.Model,
		APIKey:      gc.APIKey.Value(),
		Temperature: gc.Temperature,
		MaxTokens:   gc.MaxTokens,
		Timeout:     gc.Timeout.Duration(),
		RateLimit:   gc.RateLimit,
		Burst:       gc.Burst,
	}, logger)
	if err != nil {
		return nil, apperr.Configuration("generation", err)
	}
	return client, nil
}

func indexConfig(cfg *config.Config) vectorstore.Config {
	return vectorstore.Config{
		Path:       cfg.Index.Path,
		Collection: cfg.Index.Collection,
		Compress:   cfg.Index.Compress,
	}
}

// expectations checks an opened index against the model queries will use.
func expectations(cfg *config.Config, model string) vectorstore.Expectations {
	return vectorstore.Expectations{
		EmbeddingModel:     model,
		AllowModelMismatch: cfg.Index.AllowModelMismatch,
	}
}

func indexerConfig(cfg *config.Config) indexer.Config {
	return indexer.Config{
		SourcesDir: cfg.Sources.Dir,
		Chunking: chunker.Config{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			Overlap:      cfg.Chunking.Overlap,
		},
		Index:             indexConfig(cfg),
		EmbeddingProvider: cfg.Embeddings.Provider,
	}
}
