package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/config"
	"github.com/fyrsmithlabs/bellaqa/internal/indexer"
	"github.com/fyrsmithlabs/bellaqa/internal/logging"
	"github.com/fyrsmithlabs/bellaqa/internal/rag"
	"github.com/fyrsmithlabs/bellaqa/internal/ragtest"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var storyFiles = map[string]string{
	"story.txt": "Bella lives in an old mansion on the hill.\n\n" +
		"Every night Bella walks the halls of the mansion with a lantern.",
	"market.txt": "On market day Bella sells apples at the market.\n\n" +
		"A stranger at the market offers Bella a silver sword.",
}

// writeFixture writes the story files and a config file pointing at them.
func writeFixture(t *testing.T, files ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, text := range storyFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o600))
	}

	var list strings.Builder
	for _, f := range files {
		fmt.Fprintf(&list, "    - %s\n", f)
	}
	yaml := fmt.Sprintf(`sources:
  dir: %s
  files:
%schunking:
  max_chunk_size: 60
  overlap: 10
index:
  path: %s
retrieval:
  top_k: 2
`, dir, list.String(), filepath.Join(dir, "chroma_db"))

	path := filepath.Join(dir, "bellaqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newTestEmbedder() *ragtest.KeywordEmbedder {
	return ragtest.NewKeywordEmbedder("bella", "mansion", "market", "sword")
}

func TestLoadEnvFile(t *testing.T) {
	const (
		fromFile = "BELLAQA_CLI_TEST_FROM_FILE"
		preset   = "BELLAQA_CLI_TEST_PRESET"
	)
	_ = os.Unsetenv(fromFile)
	t.Cleanup(func() { _ = os.Unsetenv(fromFile) })
	t.Setenv(preset, "kept")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(fromFile+"=loaded\n"+preset+"=overridden\n"), 0o600))

	require.NoError(t, loadEnvFile(path, true))
	assert.Equal(t, "loaded", os.Getenv(fromFile))
	assert.Equal(t, "kept", os.Getenv(preset), "existing variables win over the env file")
}

func TestLoadEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")

	assert.NoError(t, loadEnvFile(missing, false), "missing default env file is ignored")
	assert.NoError(t, loadEnvFile("", true))

	err := loadEnvFile(missing, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "configuration", err: apperr.Configuration("serve", errors.New("no index")), want: 2},
		{name: "index build", err: apperr.IndexBuild("embed_chunks", errors.New("quota")), want: 3},
		{name: "generation", err: apperr.Generation("generate", errors.New("down")), want: 1},
		{name: "unclassified", err: errors.New("boom"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
			assert.Equal(t, tt.want, exitCode(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestConfigFields_RedactsKeys(t *testing.T) {
	cfg := writeFixture(t, "story.txt")
	cfg.Embeddings.APIKey = config.Secret("sk-embed-key")
	cfg.Generation.APIKey = ""

	tl := logging.NewTestLogger()
	tl.Debug(context.Background(), "configuration loaded", configFields(cfg)...)

	tl.AssertField(t, "configuration loaded", "embeddings.api_key", "[REDACTED:12]")
	tl.AssertField(t, "configuration loaded", "generation.api_key", "[REDACTED:0]")
	tl.AssertField(t, "configuration loaded", "retrieval.top_k", int64(2))
	tl.AssertNoSecrets(t)
}

func TestBuildIndex(t *testing.T) {
	cfg := writeFixture(t, "story.txt", "market.txt", "missing.txt")
	embedder := newTestEmbedder()

	var out bytes.Buffer
	res, err := buildIndex(context.Background(), &out, cfg, embedder, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, []string{"missing.txt"}, res.Skipped)
	assert.Greater(t, res.Chunks, 2)
	assert.Equal(t, "keyword-test", res.Manifest.EmbeddingModel)
	assert.EqualValues(t, 1, embedder.DocumentCalls.Load())

	text := out.String()
	assert.Contains(t, text, "documents loaded")
	assert.Contains(t, text, "missing.txt")
	assert.Contains(t, text, "chunks persisted")
	assert.Contains(t, text, "Index built")
	assert.Contains(t, text, res.Manifest.BuildID)

	ix, err := vectorstore.Open(indexConfig(cfg), expectations(cfg, embedder.Model()), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, ix.Count())
}

func TestBuildIndex_NoLoadableSources(t *testing.T) {
	cfg := writeFixture(t, "missing.txt")

	var out bytes.Buffer
	_, err := buildIndex(context.Background(), &out, cfg, newTestEmbedder(), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Equal(t, 2, exitCode(err))

	_, statErr := os.Stat(cfg.Index.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildIndex_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	cfg := writeFixture(t, "story.txt", "market.txt")
	embedder := newTestEmbedder()

	first, err := buildIndex(context.Background(), &bytes.Buffer{}, cfg, embedder, zap.NewNop())
	require.NoError(t, err)

	embedder.SetFail(true)
	_, err = buildIndex(context.Background(), &bytes.Buffer{}, cfg, embedder, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIndexBuild)
	assert.Equal(t, 3, exitCode(err))

	m, err := vectorstore.ReadManifest(cfg.Index.Path)
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.BuildID, m.BuildID)
}

func TestAskOnce(t *testing.T) {
	cfg := writeFixture(t, "story.txt", "market.txt")
	embedder := newTestEmbedder()
	_, err := buildIndex(context.Background(), &bytes.Buffer{}, cfg, embedder, zap.NewNop())
	require.NoError(t, err)

	generator := ragtest.NewGenerator("Bella lives in the mansion on the hill.")

	var out bytes.Buffer
	err = askOnce(context.Background(), &out, cfg, embedder, generator, "Where is Bella's mansion?", false, logging.NewNop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Bella lives in the mansion on the hill.")
	assert.NotContains(t, out.String(), "Sources")
	assert.Equal(t, 1, generator.Calls())
	assert.Contains(t, generator.LastPrompt(), "Where is Bella's mansion?")

	out.Reset()
	err = askOnce(context.Background(), &out, cfg, embedder, generator, "Who offers a sword?", true, logging.NewNop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sources")
	assert.Contains(t, out.String(), ".txt#")
}

func TestAskOnce_EmptyQuestion(t *testing.T) {
	cfg := writeFixture(t, "story.txt")
	embedder := newTestEmbedder()
	_, err := buildIndex(context.Background(), &bytes.Buffer{}, cfg, embedder, zap.NewNop())
	require.NoError(t, err)

	generator := ragtest.NewGenerator("unused")
	err = askOnce(context.Background(), &bytes.Buffer{}, cfg, embedder, generator, "   ", false, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, generator.Calls())
	assert.Zero(t, embedder.QueryCalls.Load())
}

func TestAskOnce_MissingIndex(t *testing.T) {
	cfg := writeFixture(t, "story.txt")

	err := askOnce(context.Background(), &bytes.Buffer{}, cfg, newTestEmbedder(), ragtest.NewGenerator("x"), "Who is Bella?", false, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}

func TestRenderProgress(t *testing.T) {
	line := renderProgress(indexer.Progress{Stage: indexer.StageLoaded, Count: 2, Skipped: []string{"Original.txt"}})
	assert.Contains(t, line, "2")
	assert.Contains(t, line, "documents loaded")
	assert.Contains(t, line, "Original.txt")

	assert.Contains(t, renderProgress(indexer.Progress{Stage: "custom", Count: 1}), "custom")
}

func TestRenderAnswer(t *testing.T) {
	answer := &rag.Answer{
		Text: "ベラは館に住んでいます。",
		Sources: []rag.Source{
			{ID: "plot.txt#3", Source: "plot.txt", Score: 0.91234, Text: "ベラは\n丘の上の館に住んでいる。"},
		},
	}

	plain := renderAnswer(answer, false)
	assert.Contains(t, plain, "ベラは館に住んでいます。")
	assert.NotContains(t, plain, "plot.txt#3")

	withSources := renderAnswer(answer, true)
	assert.Contains(t, withSources, "plot.txt#3")
	assert.Contains(t, withSources, "(0.912)")
	assert.Contains(t, withSources, "ベラは 丘の上の館に住んでいる。")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t\tc", 10))
	assert.Equal(t, "ベラは…", preview("ベラは館に住む", 3))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "bellaqa "+version))
}

func TestRootCommand_SeriesName(t *testing.T) {
	assert.Contains(t, rootCmd.Short, "『Bella』")
	assert.Contains(t, rootCmd.Long, "『Bella』")
	assert.Contains(t, rag.PromptTemplate, "『Bella』", "help text and prompt name the series the same way")
}
