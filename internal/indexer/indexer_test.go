package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/chunker"
	"github.com/fyrsmithlabs/bellaqa/internal/embeddings"
	"github.com/fyrsmithlabs/bellaqa/internal/ragtest"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	cfg      Config
	embedder *ragtest.KeywordEmbedder
	service  *embeddings.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	emb := ragtest.NewKeywordEmbedder("bella", "forest", "witch", "cat")
	svc, err := embeddings.NewService(emb, embeddings.Config{BatchSize: 2}, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		cfg: Config{
			SourcesDir:        dir,
			Chunking:          chunker.Config{MaxChunkSize: 40, Overlap: 8},
			Index:             vectorstore.Config{Path: filepath.Join(dir, "chroma_db"), Collection: "bella"},
			EmbeddingProvider: "fake",
		},
		embedder: emb,
		service:  svc,
	}
}

func TestIndexer_Run(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.cfg.SourcesDir, "bella_main.txt", "Bella woke in the forest. The witch watched her from the trees.\n\nA black cat followed Bella home.")
	writeFile(t, f.cfg.SourcesDir, "plot.txt", "The witch kept a cat.")

	var events []Progress
	ix, err := New(f.cfg, f.service, zap.NewNop(), WithProgress(func(p Progress) { events = append(events, p) }))
	require.NoError(t, err)

	res, err := ix.Run(context.Background(), []string{"bella_main.txt", "plot.txt", "Original.txt"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, []string{"Original.txt"}, res.Skipped)
	assert.Greater(t, res.Chunks, 2)
	assert.Equal(t, int64(res.Chunks), f.embedder.EmbeddedTexts.Load(), "every chunk is embedded exactly once")

	require.Len(t, events, 4)
	assert.Equal(t, []Stage{StageLoaded, StageChunked, StageEmbedded, StagePersisted},
		[]Stage{events[0].Stage, events[1].Stage, events[2].Stage, events[3].Stage})
	assert.Equal(t, 2, events[0].Count)
	assert.Equal(t, res.Chunks, events[3].Count)

	m := res.Manifest
	assert.Equal(t, "keyword-test", m.EmbeddingModel)
	assert.Equal(t, "fake", m.EmbeddingProvider)
	assert.Equal(t, []string{"bella_main.txt", "plot.txt"}, m.Sources)
	assert.Equal(t, vectorstore.ChunkingParams{MaxChunkSize: 40, Overlap: 8}, m.Chunking)
	assert.Equal(t, f.embedder.Dimension(), m.Dimension)

	opened, err := vectorstore.Open(f.cfg.Index, vectorstore.Expectations{EmbeddingModel: "keyword-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, opened.Count())
}

func TestIndexer_RunRepeatedSource(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.cfg.SourcesDir, "plot.txt", "The witch kept a cat. Bella fed it every morning in the forest.")

	ix, err := New(f.cfg, f.service, zap.NewNop())
	require.NoError(t, err)

	res, err := ix.Run(context.Background(), []string{"plot.txt", "plot.txt"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, []string{"plot.txt"}, res.Manifest.Sources)
	assert.Equal(t, int64(res.Chunks), f.embedder.EmbeddedTexts.Load())
}

func TestIndexer_RunWithoutSources(t *testing.T) {
	f := newFixture(t)
	ix, err := New(f.cfg, f.service, zap.NewNop())
	require.NoError(t, err)

	_, err = ix.Run(context.Background(), []string{"bella_main.txt", "plot.txt", "Original.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Equal(t, int64(0), f.embedder.DocumentCalls.Load())

	_, statErr := os.Stat(f.cfg.Index.Path)
	assert.True(t, os.IsNotExist(statErr), "no index artifact may be created")
}

func TestIndexer_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.cfg.SourcesDir, "plot.txt", "The witch kept a cat. Bella fed it every morning in the forest.")

	ix, err := New(f.cfg, f.service, zap.NewNop())
	require.NoError(t, err)

	first, err := ix.Run(context.Background(), []string{"plot.txt"})
	require.NoError(t, err)

	f.embedder.SetFail(true)
	_, err = ix.Run(context.Background(), []string{"plot.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIndexBuild)
	assert.ErrorIs(t, err, ragtest.ErrInjected)

	m, err := vectorstore.ReadManifest(f.cfg.Index.Path)
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.BuildID, m.BuildID)
}

func TestNew_InvalidChunking(t *testing.T) {
	f := newFixture(t)
	f.cfg.Chunking = chunker.Config{MaxChunkSize: 10, Overlap: 10}

	_, err := New(f.cfg, f.service, nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)

	_, err = New(f.cfg, nil, nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}
