package embeddings

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider returns deterministic vectors and records each call's batch size.
type fakeProvider struct {
	mu      sync.Mutex
	batches []int
	failOn  int // 1-based call index that fails; 0 never
	short   bool
	calls   int
	closed  bool
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, len(texts))
	if f.failOn == f.calls {
		return nil, fmt.Errorf("%w: upstream 500", ErrEmbeddingFailed)
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, []float32{float32(len(t)), 1})
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeProvider) Model() string { return "fake-embed" }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		config   Config
		wantErr  bool
	}{
		{name: "defaults", provider: &fakeProvider{}, config: Config{}},
		{name: "rate limited", provider: &fakeProvider{}, config: Config{BatchSize: 10, RateLimit: 5, Burst: 2}},
		{name: "nil provider", provider: nil, wantErr: true},
		{name: "negative batch size", provider: &fakeProvider{}, config: Config{BatchSize: -1}, wantErr: true},
		{name: "negative rate", provider: &fakeProvider{}, config: Config{RateLimit: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.provider, tt.config, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "fake-embed", svc.Model())
		})
	}
}

func TestService_EmbedDocuments_Batches(t *testing.T) {
	p := &fakeProvider{}
	svc, err := NewService(p, Config{BatchSize: 3}, nil)
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "g"}
	vectors, err := svc.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, p.batches)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d out of order", i)
	}
}

func TestService_EmbedDocuments_Errors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		svc, err := NewService(&fakeProvider{}, Config{}, nil)
		require.NoError(t, err)
		_, err = svc.EmbedDocuments(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("failing batch names its range", func(t *testing.T) {
		svc, err := NewService(&fakeProvider{failOn: 2}, Config{BatchSize: 2}, nil)
		require.NoError(t, err)
		_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "batch [2:4]")
	})

	t.Run("count mismatch", func(t *testing.T) {
		svc, err := NewService(&fakeProvider{short: true}, Config{}, nil)
		require.NoError(t, err)
		_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, err := NewService(&fakeProvider{}, Config{RateLimit: 0.001, Burst: 1}, nil)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = svc.EmbedDocuments(ctx, []string{"a"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestService_EmbedQuery(t *testing.T) {
	p := &fakeProvider{}
	svc, err := NewService(p, Config{}, nil)
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "ベラは誰？")
	require.NoError(t, err)
	assert.Equal(t, []float32{float32(len("ベラは誰？")), 1}, vec)

	_, err = svc.EmbedQuery(context.Background(), "  \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 1, p.calls, "blank query must not reach the provider")
}

func TestService_Close(t *testing.T) {
	p := &fakeProvider{}
	svc, err := NewService(p, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.True(t, p.closed)
}
