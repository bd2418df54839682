// Package config loads bellaqa configuration from embedded defaults, an
// optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// Provider names shared by the embeddings and generation sections.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderFastEmbed = "fastembed"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete bellaqa configuration. The logging and
// telemetry sections are decoded by their own packages through Unmarshal.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Sources    SourcesConfig    `koanf:"sources"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generation GenerationConfig `koanf:"generation"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`

	k *koanf.Koanf
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	// StaticDir, when set, holds the index.html served at /.
	StaticDir string `koanf:"static_dir"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SourcesConfig names the story files the indexer reads.
type SourcesConfig struct {
	Dir     string   `koanf:"dir"`
	Files   []string `koanf:"files"`
	EnvFile string   `koanf:"env_file"`
}

// ChunkingConfig holds the splitter parameters, in characters.
type ChunkingConfig struct {
	MaxChunkSize int `koanf:"max_chunk_size"`
	Overlap      int `koanf:"overlap"`
}

// IndexConfig locates the persisted index.
type IndexConfig struct {
	Path               string `koanf:"path"`
	Collection         string `koanf:"collection"`
	Compress           bool   `koanf:"compress"`
	Watch              bool   `koanf:"watch"`
	AllowModelMismatch bool   `koanf:"allow_model_mismatch"`
}

// EmbeddingsConfig selects the embedding service.
type EmbeddingsConfig struct {
	Provider  string  `koanf:"provider"`
	BaseURL   string  `koanf:"base_url"`
	Model     string  `koanf:"model"`
	APIKey    Secret  `koanf:"api_key"`
	BatchSize int     `koanf:"batch_size"`
	RateLimit float64 `koanf:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int     `koanf:"burst"`
	CacheDir  string  `koanf:"cache_dir"`
}

// GenerationConfig selects the language model.
type GenerationConfig struct {
	Provider    string   `koanf:"provider"`
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"` // 0 = provider default
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
}

// RetrievalConfig controls how many chunks ground each answer.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// Unmarshal decodes the section at path into out. Fields of out that the
// loaded configuration does not mention keep their current values.
func (c *Config) Unmarshal(path string, out any) error {
	if c.k == nil {
		return nil
	}
	if err := c.k.Unmarshal(path, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		add("server.shutdown_timeout must be positive")
	}
	if c.Server.RequestTimeout.Duration() <= 0 {
		add("server.request_timeout must be positive")
	}

	if c.Chunking.MaxChunkSize <= 0 {
		add("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		add("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap)
	}

	if strings.TrimSpace(c.Index.Path) == "" {
		add("index.path is required")
	}
	if c.Index.Collection == "" {
		add("index.collection is required")
	}

	switch c.Embeddings.Provider {
	case ProviderOpenAI, ProviderOllama:
		if c.Embeddings.Model == "" {
			add("embeddings.model is required for provider %q", c.Embeddings.Provider)
		}
	case ProviderFastEmbed:
	default:
		add("embeddings.provider must be openai, ollama or fastembed, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		add("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.RateLimit < 0 || c.Embeddings.Burst < 0 {
		add("embeddings.rate_limit and burst must not be negative")
	}

	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		add("generation.provider must be openai or ollama, got %q", c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		add("generation.model is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		add("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}
	if c.Generation.MaxTokens < 0 {
		add("generation.max_tokens must not be negative")
	}
	if c.Generation.Timeout.Duration() <= 0 {
		add("generation.timeout must be positive")
	}
	if c.Generation.RateLimit < 0 || c.Generation.Burst < 0 {
		add("generation.rate_limit and burst must not be negative")
	}

	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}

	return errors.Join(errs...)
}

// CheckCredentials reports a missing API key for the hosted providers the
// caller is about to use.
func (c *Config) CheckCredentials(embeddings, generation bool) error {
	var errs []error
	if embeddings && c.Embeddings.Provider == ProviderOpenAI && !c.Embeddings.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("%w: embeddings.api_key is required for provider openai (set BELLAQA_EMBEDDINGS_API_KEY or GOOGLE_API_KEY)", ErrInvalidConfig))
	}
	if generation && c.Generation.Provider == ProviderOpenAI && !c.Generation.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("%w: generation.api_key is required for provider openai (set BELLAQA_GENERATION_API_KEY or GOOGLE_API_KEY)", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
