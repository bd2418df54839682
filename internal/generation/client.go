package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPrompt indicates an empty prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrGenerationFailed indicates the upstream call failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// Provider names accepted by NewClient.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Generator produces an answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for the generation client.
type Config struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "ollama".
	Provider string
	// BaseURL is the API endpoint.
	BaseURL string
	// Model is the chat model name.
	Model string
	// APIKey authenticates against hosted endpoints.
	APIKey string
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the answer length. Zero leaves it to the provider.
	MaxTokens int
	// Timeout bounds a single Generate call. Zero means no extra bound.
	Timeout time.Duration
	// RateLimit is the sustained calls per second. Zero disables limiting.
	RateLimit float64
	// Burst is the limiter burst size. Defaults to 1.
	Burst int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %g", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must be >= 0", ErrInvalidConfig)
	}
	if c.RateLimit < 0 || c.Burst < 0 {
		return fmt.Errorf("%w: rate limit and burst must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Client implements Generator on top of a langchaingo model.
type Client struct {
	llm     llms.Model
	config  Config
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// NewClient creates a Client for the configured provider.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: api key is required for the openai provider", ErrInvalidConfig)
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return NewClientWithModel(llm, cfg, logger)
}

// NewClientWithModel creates a Client around an existing langchaingo model.
func NewClientWithModel(llm llms.Model, cfg Config, logger *zap.Logger) (*Client, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: model client is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		llm:     llm,
		config:  cfg,
		limiter: limiter,
		metrics: NewMetrics(logger),
		logger:  logger.Named("generation"),
	}, nil
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Generate sends prompt as a single user message and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (answer string, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordGeneration(ctx, c.config.Model, time.Since(start), err)
	}()

	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	opts := []llms.CallOption{llms.WithTemperature(c.config.Temperature)}
	if c.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.config.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	answer = strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("generated answer",
		zap.String("model", c.config.Model),
		zap.Int("prompt_runes", len([]rune(prompt))),
		zap.Int("answer_runes", len([]rune(answer))),
		zap.String("stop_reason", resp.Choices[0].StopReason),
	)
	return answer, nil
}
