package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBatchSize bounds texts per provider call when Config.BatchSize is unset.
const DefaultBatchSize = 100

// Config holds configuration for the embedding service.
type Config struct {
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int

	// RateLimit is the sustained provider calls per second. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter burst size. Defaults to 1.
	Burst int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be >= 0", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must be >= 0", ErrInvalidConfig)
	}
	if c.Burst < 0 {
		return fmt.Errorf("%w: burst must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Service provides batched, rate-limited embedding generation on top of a Provider.
type Service struct {
	provider Provider
	config   Config
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   *zap.Logger
}

// NewService creates a new embedding service wrapping provider.
func NewService(provider Provider, config Config, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Service{
		provider: provider,
		config:   config,
		limiter:  limiter,
		metrics:  NewMetrics(logger),
		logger:   logger.Named("embeddings"),
	}, nil
}

// Model returns the identifier of the underlying embedding model.
func (s *Service) Model() string {
	return s.provider.Model()
}

// EmbedDocuments embeds texts in batches of at most Config.BatchSize.
// The result holds exactly one non-empty vector per input, in input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(texts))

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		vectors = append(vectors, batch...)

		s.logger.Debug("embedded batch",
			zap.Int("start", start),
			zap.Int("end", end),
			zap.Int("total", len(texts)),
		)
	}
	return vectors, nil
}

func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c := call{purpose: PurposeIndexing, model: s.provider.Model(), texts: len(texts)}
	defer func() { s.metrics.record(ctx, c) }()

	if err := s.wait(ctx, &c); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	c.elapsed = time.Since(start)
	if err != nil {
		c.stage = stageProvider
		return nil, err
	}
	if len(vectors) != len(texts) {
		c.stage = stageResponse
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			c.stage = stageResponse
			return nil, fmt.Errorf("%w: empty vector at position %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	c := call{purpose: PurposeQuery, model: s.provider.Model(), texts: 1}
	defer func() { s.metrics.record(ctx, c) }()

	if err := s.wait(ctx, &c); err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := s.provider.EmbedQuery(ctx, text)
	c.elapsed = time.Since(start)
	if err != nil {
		c.stage = stageProvider
		return nil, err
	}
	if len(vector) == 0 {
		c.stage = stageResponse
		return nil, fmt.Errorf("%w: empty query vector", ErrEmbeddingFailed)
	}
	return vector, nil
}

// wait blocks on the rate limiter and notes the time spent in c.
func (s *Service) wait(ctx context.Context, c *call) error {
	start := time.Now()
	err := s.limiter.Wait(ctx)
	c.wait = time.Since(start)
	if err != nil {
		c.stage = stageRateLimit
	}
	return err
}

// Close releases the underlying provider.
func (s *Service) Close() error {
	return s.provider.Close()
}
