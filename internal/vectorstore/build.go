package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var tracer = otel.Tracer("bellaqa.vectorstore")

// Metadata keys stored with every chunk.
const (
	metaSource   = "source"
	metaSequence = "sequence"
	metaOrdinal  = "ordinal"
	metaStart    = "start"
	metaOverlap  = "overlap"
)

// Suffixes of the sibling directories used while swapping an index into place.
const (
	buildingSuffix = ".building-"
	oldSuffix      = ".old-"
)

// Record is one chunk and its embedding, ready to be persisted.
// Records are stored in slice order; that order is the tie-break ordinal.
type Record struct {
	ID        string
	Source    string
	Sequence  int
	Start     int
	Overlap   int
	Text      string
	Embedding []float32
}

// Build persists records as a new index at cfg.Path and returns the final manifest.
//
// The caller supplies the descriptive manifest fields (embedding provider and
// model, sources, chunking). Build fills in the build id, dimension, chunk
// count, collection and build time. An existing index is replaced only once
// the new one is complete; on any failure the previous index is untouched and
// no partial directory remains.
func Build(ctx context.Context, cfg Config, manifest Manifest, records []Record, logger *zap.Logger) (*Manifest, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Build")
	defer span.End()

	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := build(ctx, cfg, manifest, records, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		BuildsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.String("build_id", m.BuildID),
		attribute.Int("chunk_count", m.ChunkCount),
		attribute.Int("dimension", m.Dimension),
	)
	span.SetStatus(codes.Ok, "success")
	BuildsTotal.WithLabelValues("success").Inc()
	return m, nil
}

func build(ctx context.Context, cfg Config, manifest Manifest, records []Record, logger *zap.Logger) (*Manifest, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	dim, err := validateRecords(records)
	if err != nil {
		return nil, err
	}

	dest, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	m := manifest
	m.Version = manifestVersion
	if m.BuildID == "" {
		m.BuildID = uuid.NewString()
	}
	m.Dimension = dim
	m.ChunkCount = len(records)
	m.Collection = cfg.Collection
	m.BuiltAt = timeNow().UTC()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}

	tmp := dest + buildingSuffix + m.BuildID
	committed := false
	defer func() {
		if !committed {
			if rmErr := os.RemoveAll(tmp); rmErr != nil {
				logger.Warn("failed to remove temporary index directory",
					zap.String("path", tmp), zap.Error(rmErr))
			}
		}
	}()

	if err := writeVectors(ctx, filepath.Join(tmp, vectorsDir), cfg, records); err != nil {
		return nil, err
	}
	if err := writeManifest(tmp, &m); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := swapInto(tmp, dest, m.BuildID, logger); err != nil {
		return nil, err
	}
	committed = true

	logger.Info("index built",
		zap.String("path", dest),
		zap.String("build_id", m.BuildID),
		zap.Int("chunks", m.ChunkCount),
		zap.Int("dimension", m.Dimension),
		zap.String("embedding_model", m.EmbeddingModel),
	)
	return &m, nil
}

// validateRecords checks ids and returns the common embedding dimension.
func validateRecords(records []Record) (int, error) {
	if len(records) == 0 {
		return 0, ErrEmptyRecords
	}

	dim := len(records[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: record %q has an empty embedding", ErrDimensionMismatch, records[0].ID)
	}

	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("%w: record %d has no id", ErrInvalidConfig, i)
		}
		if _, dup := seen[r.ID]; dup {
			return 0, fmt.Errorf("%w: duplicate record id %q", ErrInvalidConfig, r.ID)
		}
		seen[r.ID] = struct{}{}

		if len(r.Embedding) != dim {
			return 0, fmt.Errorf("%w: record %q has %d dimensions, expected %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
		if isZero(r.Embedding) {
			return 0, fmt.Errorf("%w: record %q has a zero vector", ErrInvalidConfig, r.ID)
		}
	}
	return dim, nil
}

func writeVectors(ctx context.Context, dir string, cfg Config, records []Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(dir, cfg.Compress)
	if err != nil {
		return fmt.Errorf("creating chromem DB: %w", err)
	}
	collection, err := db.CreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Embedding,
			Metadata: map[string]string{
				metaSource:   r.Source,
				metaSequence: strconv.Itoa(r.Sequence),
				metaOrdinal:  strconv.Itoa(i),
				metaStart:    strconv.Itoa(r.Start),
				metaOverlap:  strconv.Itoa(r.Overlap),
			},
		}
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	if got := collection.Count(); got != len(records) {
		return fmt.Errorf("%w: stored %d of %d records", ErrCorruptIndex, got, len(records))
	}
	return nil
}

// swapInto renames tmp to dest, moving any existing index aside first.
func swapInto(tmp, dest, buildID string, logger *zap.Logger) error {
	old := ""
	if _, err := os.Stat(dest); err == nil {
		old = dest + oldSuffix + buildID
		if err := os.Rename(dest, old); err != nil {
			return fmt.Errorf("moving previous index aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking index path: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		if old != "" {
			if rbErr := os.Rename(old, dest); rbErr != nil {
				logger.Error("failed to restore previous index",
					zap.String("path", old), zap.Error(rbErr))
			}
		}
		return fmt.Errorf("renaming index into place: %w", err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			logger.Warn("failed to remove previous index", zap.String("path", old), zap.Error(err))
		}
	}
	return nil
}

// noEmbedding is the collection's embedding func. Every vector is supplied
// by the caller, so chromem must never need to embed text itself.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("index does not embed text; supply vectors")
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
