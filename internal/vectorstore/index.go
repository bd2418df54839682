package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SearchResult is one retrieved chunk.
type SearchResult struct {
	ID       string
	Source   string
	Sequence int
	Ordinal  int
	Text     string
	Score    float32
}

// Expectations are checked against an index's manifest when it is opened.
type Expectations struct {
	// EmbeddingModel is the model the running process will embed queries with.
	// Empty skips the check.
	EmbeddingModel string

	// AllowModelMismatch downgrades a model mismatch to a warning.
	AllowModelMismatch bool
}

// Index is an opened, read-only index. It is safe for concurrent queries.
type Index struct {
	path       string
	manifest   Manifest
	collection *chromem.Collection
	logger     *zap.Logger
}

// Open loads the index at cfg.Path and validates it against exp.
// Every failure is a configuration error: the process must not serve
// without a usable index.
func Open(cfg Config, exp Expectations, logger *zap.Logger) (*Index, error) {
	ix, err := open(cfg, exp, logger)
	if err != nil {
		return nil, apperr.Configuration("vectorstore.Open", err)
	}
	return ix, nil
}

func open(cfg Config, exp Expectations, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	if m.Collection != cfg.Collection {
		return nil, fmt.Errorf("%w: index holds collection %q, configured %q",
			ErrInvalidConfig, m.Collection, cfg.Collection)
	}

	if exp.EmbeddingModel != "" && m.EmbeddingModel != exp.EmbeddingModel {
		if !exp.AllowModelMismatch {
			return nil, fmt.Errorf("%w: index built with %q, configured %q (rebuild the index or set index.allow_model_mismatch)",
				ErrModelMismatch, m.EmbeddingModel, exp.EmbeddingModel)
		}
		logger.Warn("embedding model differs from the index; similarity scores may be meaningless",
			zap.String("index_model", m.EmbeddingModel),
			zap.String("configured_model", exp.EmbeddingModel),
		)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(path, vectorsDir), cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: loading vectors: %v", ErrCorruptIndex, err)
	}
	collection := db.GetCollection(m.Collection, noEmbedding)
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %q missing", ErrCorruptIndex, m.Collection)
	}
	if got := collection.Count(); got != m.ChunkCount {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, found %d", ErrCorruptIndex, m.ChunkCount, got)
	}

	ix := &Index{
		path:       path,
		manifest:   *m,
		collection: collection,
		logger:     logger,
	}
	recordIndexLoaded(ix)

	logger.Info("index opened",
		zap.String("path", path),
		zap.String("build_id", m.BuildID),
		zap.Int("chunks", m.ChunkCount),
		zap.String("embedding_model", m.EmbeddingModel),
	)
	return ix, nil
}

// Manifest returns a copy of the index manifest.
func (ix *Index) Manifest() Manifest {
	m := ix.manifest
	m.Sources = slices.Clone(m.Sources)
	return m
}

// Count returns the number of chunks in the index.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Path returns the index directory.
func (ix *Index) Path() string {
	return ix.path
}

// Query returns the k chunks most similar to vector, most similar first.
// Equal scores are ordered by insertion ordinal. A k larger than the
// index returns every chunk.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Index.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))
	start := time.Now()

	results, err := ix.query(ctx, vector, k)
	QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	ix.logger.Debug("queried index",
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (ix *Index) query(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != ix.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(vector), ix.manifest.Dimension)
	}
	if isZero(vector) {
		return nil, fmt.Errorf("query vector is all zeros")
	}

	// chromem orders equal scores arbitrarily, so rank the whole collection
	// and apply the ordinal tie-break before truncating.
	n := ix.collection.Count()
	if n == 0 {
		return []SearchResult{}, nil
	}
	raw, err := ix.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", ix.manifest.Collection, err)
	}

	results := make([]SearchResult, len(raw))
	for i, r := range raw {
		results[i] = SearchResult{
			ID:       r.ID,
			Source:   r.Metadata[metaSource],
			Sequence: atoiOr(r.Metadata[metaSequence], -1),
			Ordinal:  atoiOr(r.Metadata[metaOrdinal], n+i),
			Text:     r.Content,
			Score:    r.Similarity,
		}
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
