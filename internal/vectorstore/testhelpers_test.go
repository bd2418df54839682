package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testConfig returns a Config rooted in a fresh temporary directory.
func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:       filepath.Join(t.TempDir(), "chroma_db"),
		Collection: "test",
	}
}

// axisRecords returns n records whose embeddings point along distinct axes,
// plus a shared bias component so no vector is zero.
func axisRecords(n, dim int) []Record {
	records := make([]Record, n)
	for i := range records {
		vec := make([]float32, dim)
		vec[i%(dim-1)] = 1
		vec[dim-1] = 0.1
		records[i] = Record{
			ID:        fmt.Sprintf("doc.txt#%d", i),
			Source:    "doc.txt",
			Sequence:  i,
			Start:     i * 10,
			Text:      fmt.Sprintf("chunk %d", i),
			Embedding: vec,
		}
	}
	return records
}

func testManifest() Manifest {
	return Manifest{
		EmbeddingProvider: "fake",
		EmbeddingModel:    "fake-embed",
		Sources:           []string{"doc.txt"},
		Chunking:          ChunkingParams{MaxChunkSize: 20, Overlap: 5},
	}
}

// buildTestIndex builds records at cfg and opens the result.
func buildTestIndex(t *testing.T, cfg Config, records []Record) *Index {
	t.Helper()

	_, err := Build(context.Background(), cfg, testManifest(), records, zap.NewNop())
	require.NoError(t, err)

	ix, err := Open(cfg, Expectations{EmbeddingModel: "fake-embed"}, zap.NewNop())
	require.NoError(t, err)
	return ix
}
