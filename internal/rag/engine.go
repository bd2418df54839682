// Package rag answers questions about 『Bella』 from retrieved plot chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/logging"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// ErrInvalidConfig indicates invalid engine configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

var tracer = otel.Tracer("bellaqa.rag")

// QueryEmbedder embeds a question. It must match the embedder the index was built with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the k chunks nearest to a vector, most similar first.
type Retriever interface {
	Query(ctx context.Context, vector []float32, k int) ([]vectorstore.SearchResult, error)
}

// Generator produces an answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Query is one question.
type Query struct {
	Question string
	// Mode is accepted for compatibility with older clients and ignored.
	Mode string
}

// Source is a retrieved chunk that contributed to an answer.
type Source struct {
	ID     string
	Source string
	Score  float32
	Text   string
}

// Answer is the generated reply and the chunks it was grounded on.
type Answer struct {
	Text    string
	Sources []Source
}

// Config holds engine configuration.
type Config struct {
	// TopK is the number of chunks retrieved per question. Default: 5
	TopK int
}

// Engine runs the retrieve-then-generate pipeline. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	embedder  QueryEmbedder
	retriever Retriever
	generator Generator
	topK      int
	logger    *logging.Logger
}

// NewEngine wires the pipeline's collaborators.
func NewEngine(embedder QueryEmbedder, retriever Retriever, generator Generator, cfg Config, logger *logging.Logger) (*Engine, error) {
	if embedder == nil || retriever == nil || generator == nil {
		return nil, fmt.Errorf("%w: embedder, retriever and generator are required", ErrInvalidConfig)
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, cfg.TopK)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		topK:      cfg.TopK,
		logger:    logger.Named("rag"),
	}, nil
}

// Ask answers q. Errors are classified: ValidationError for an empty
// question, RetrievalError for embedding or search failures, GenerationError
// for the model call. Generation is attempted exactly once.
func (e *Engine) Ask(ctx context.Context, q Query) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "Engine.Ask")
	defer span.End()

	answer, err := e.ask(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
		return nil, err
	}

	span.SetAttributes(attribute.Int("sources_count", len(answer.Sources)))
	span.SetStatus(codes.Ok, "success")
	return answer, nil
}

func (e *Engine) ask(ctx context.Context, q Query) (*Answer, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, apperr.Validation("ask", "質問を入力してください")
	}

	start := time.Now()

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, apperr.Retrieval("embed_question", err)
	}

	results, err := e.retriever.Query(ctx, vector, e.topK)
	if err != nil {
		// A missing index is not a per-request failure.
		if apperr.KindOf(err) == apperr.KindConfiguration {
			return nil, err
		}
		return nil, apperr.Retrieval("search_index", err)
	}
	retrieved := time.Now()

	texts := make([]string, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		texts[i] = r.Text
		sources[i] = Source{ID: r.ID, Source: r.Source, Score: r.Score, Text: r.Text}
	}

	prompt, err := BuildPrompt(texts, question)
	if err != nil {
		return nil, apperr.Generation("build_prompt", err)
	}

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.Generation("generate", err)
	}

	e.logger.Info(ctx, "answered question",
		zap.Int("question_runes", len([]rune(question))),
		zap.Int("sources", len(sources)),
		zap.Strings("source_ids", sourceIDs(sources)),
		zap.Duration("retrieval", retrieved.Sub(start)),
		zap.Duration("total", time.Since(start)),
	)

	return &Answer{Text: text, Sources: sources}, nil
}

func sourceIDs(sources []Source) []string {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids
}
