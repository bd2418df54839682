//go:build cgo

package embeddings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastEmbedProvider(t *testing.T) {
	// Downloads model weights and needs the ONNX runtime.
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if os.Getenv("ONNX_PATH") == "" {
		if _, err := os.Stat("/usr/lib/libonnxruntime.so"); os.IsNotExist(err) {
			t.Skip("ONNX runtime not available, skipping FastEmbed test")
		}
	}

	p, err := NewFastEmbedProvider(FastEmbedConfig{
		Model:    "BAAI/bge-small-en-v1.5",
		CacheDir: t.TempDir(),
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "BAAI/bge-small-en-v1.5", p.Model())

	ctx := context.Background()
	docs, err := p.EmbedDocuments(ctx, []string{"Bella woke in the forest.", "The witch kept a cat."})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Len(t, docs[0], 384)

	q, err := p.EmbedQuery(ctx, "Where did Bella wake up?")
	require.NoError(t, err)
	assert.Len(t, q, 384)

	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "fast-unknown"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
