// Package indexer builds the vector index from the plot files.
//
// A run loads the configured sources, splits them into overlapping chunks,
// embeds every chunk once and persists the result with vectorstore.Build.
// Any failure after loading aborts the run and leaves the previous index
// current.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/chunker"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates invalid indexer configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Embedder embeds chunk texts in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding model; it is recorded in the manifest.
	Model() string
}

// Stage names a step of an indexing run.
type Stage string

const (
	StageLoaded    Stage = "loaded"
	StageChunked   Stage = "chunked"
	StageEmbedded  Stage = "embedded"
	StagePersisted Stage = "persisted"
)

// Progress is reported once per completed stage.
type Progress struct {
	Stage Stage
	// Count is what the stage produced: documents, chunks, embeddings or
	// persisted chunks.
	Count int
	// Skipped lists source files that could not be loaded (StageLoaded only).
	Skipped []string
}

// ProgressFunc receives progress events. It must not block for long.
type ProgressFunc func(Progress)

// Config holds indexer configuration.
type Config struct {
	// SourcesDir is the directory relative source names resolve against.
	SourcesDir string
	// Chunking bounds chunk size and overlap.
	Chunking chunker.Config
	// Index is where the index is written.
	Index vectorstore.Config
	// EmbeddingProvider is recorded in the manifest.
	EmbeddingProvider string
}

// Result summarizes a successful run.
type Result struct {
	Documents int
	Skipped   []string
	Chunks    int
	Manifest  *vectorstore.Manifest
	Duration  time.Duration
}

// Indexer runs index builds.
type Indexer struct {
	cfg      Config
	splitter *chunker.Splitter
	embedder Embedder
	logger   *zap.Logger
	progress ProgressFunc
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(ix *Indexer) { ix.progress = fn }
}

// New creates an Indexer. Invalid chunking parameters are a configuration error.
func New(cfg Config, embedder Embedder, logger *zap.Logger, opts ...Option) (*Indexer, error) {
	if embedder == nil {
		return nil, apperr.Configuration("indexer.New", fmt.Errorf("%w: embedder is required", ErrInvalidConfig))
	}
	splitter, err := chunker.New(cfg.Chunking)
	if err != nil {
		return nil, apperr.Configuration("indexer.New", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ix := &Indexer{
		cfg:      cfg,
		splitter: splitter,
		embedder: embedder,
		logger:   logger.Named("indexer"),
		progress: func(Progress) {},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Run builds a fresh index from sources.
func (ix *Indexer) Run(ctx context.Context, sources []string) (*Result, error) {
	start := time.Now()

	docs, skipped, err := LoadDocuments(ix.cfg.SourcesDir, sources, ix.logger)
	if err != nil {
		return nil, err
	}
	ix.progress(Progress{Stage: StageLoaded, Count: len(docs), Skipped: skipped})

	var chunks []chunker.Chunk
	loaded := make([]string, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, ix.splitter.Split(doc.Source, doc.Text)...)
		loaded = append(loaded, doc.Source)
	}
	ix.progress(Progress{Stage: StageChunked, Count: len(chunks)})
	ix.logger.Info("split sources into chunks",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("max_chunk_size", ix.splitter.MaxChunkSize()),
		zap.Int("overlap", ix.splitter.Overlap()),
	)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperr.IndexBuild("embed_chunks", err)
	}
	if len(vectors) != len(chunks) {
		return nil, apperr.IndexBuild("embed_chunks",
			fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
	}
	ix.progress(Progress{Stage: StageEmbedded, Count: len(vectors)})

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:        c.ID(),
			Source:    c.Source,
			Sequence:  c.Sequence,
			Start:     c.Start,
			Overlap:   c.Overlap,
			Text:      c.Text,
			Embedding: vectors[i],
		}
	}

	manifest := vectorstore.Manifest{
		EmbeddingProvider: ix.cfg.EmbeddingProvider,
		EmbeddingModel:    ix.embedder.Model(),
		Sources:           loaded,
		Chunking: vectorstore.ChunkingParams{
			MaxChunkSize: ix.splitter.MaxChunkSize(),
			Overlap:      ix.splitter.Overlap(),
		},
	}
	m, err := vectorstore.Build(ctx, ix.cfg.Index, manifest, records, ix.logger)
	if err != nil {
		return nil, apperr.IndexBuild("persist_index", err)
	}
	ix.progress(Progress{Stage: StagePersisted, Count: m.ChunkCount})

	return &Result{
		Documents: len(docs),
		Skipped:   skipped,
		Chunks:    len(chunks),
		Manifest:  m,
		Duration:  time.Since(start),
	}, nil
}
