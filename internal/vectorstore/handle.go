package vectorstore

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
)

// ErrNoIndex is returned by Handle.Query before any index has been stored.
var ErrNoIndex = errors.New("no index loaded")

// Handle holds the index currently being served. Swapping is atomic; a
// query that already loaded the previous index finishes against it.
type Handle struct {
	current atomic.Pointer[Index]
}

// NewHandle returns a Handle serving ix. ix may be nil.
func NewHandle(ix *Index) *Handle {
	h := &Handle{}
	if ix != nil {
		h.current.Store(ix)
	}
	return h
}

// Load returns the current index, or nil.
func (h *Handle) Load() *Index {
	return h.current.Load()
}

// Swap installs ix and returns the index it replaced.
func (h *Handle) Swap(ix *Index) *Index {
	return h.current.Swap(ix)
}

// Query runs the query against the current index snapshot. Without an
// index it fails with a configuration error wrapping ErrNoIndex.
func (h *Handle) Query(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	ix := h.current.Load()
	if ix == nil {
		return nil, apperr.Configuration("vectorstore.Query", ErrNoIndex)
	}
	return ix.Query(ctx, vector, k)
}
