// Package ragtest provides deterministic fakes of the pipeline's external
// collaborators for tests.
package ragtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// KeywordEmbedder embeds text as a bag of words over a fixed vocabulary,
// plus a constant bias component so no vector is zero. Texts sharing
// vocabulary words score higher; everything else ties.
type KeywordEmbedder struct {
	vocab map[string]int
	dim   int
	model string

	fail          atomic.Bool
	DocumentCalls atomic.Int64
	QueryCalls    atomic.Int64
	EmbeddedTexts atomic.Int64
}

// NewKeywordEmbedder returns an embedder over words (case-insensitive).
func NewKeywordEmbedder(words ...string) *KeywordEmbedder {
	vocab := make(map[string]int, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if _, ok := vocab[w]; !ok {
			vocab[w] = len(vocab)
		}
	}
	return &KeywordEmbedder{vocab: vocab, dim: len(vocab) + 1, model: "keyword-test"}
}

// SetFail makes every subsequent call fail with ErrInjected.
func (e *KeywordEmbedder) SetFail(fail bool) { e.fail.Store(fail) }

// Dimension returns the vector length.
func (e *KeywordEmbedder) Dimension() int { return e.dim }

// Embed returns the bag-of-words vector for text.
func (e *KeywordEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		if i, ok := e.vocab[w]; ok {
			vec[i]++
		}
	}
	vec[e.dim-1] = 0.1
	return vec
}

func (e *KeywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.DocumentCalls.Add(1)
	if e.fail.Load() {
		return nil, ErrInjected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Embed(t)
	}
	e.EmbeddedTexts.Add(int64(len(texts)))
	return out, nil
}

func (e *KeywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.QueryCalls.Add(1)
	if e.fail.Load() {
		return nil, ErrInjected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Embed(text), nil
}

func (e *KeywordEmbedder) Model() string { return e.model }

func (e *KeywordEmbedder) Close() error { return nil }

// Generator is a scripted generation fake that records every prompt.
type Generator struct {
	mu      sync.Mutex
	prompts []string
	errs    []error
	reply   string
}

// NewGenerator returns a Generator answering reply.
func NewGenerator(reply string) *Generator {
	return &Generator{reply: reply}
}

// FailNext queues errors returned by the next calls, in order.
func (g *Generator) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, errs...)
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.reply, nil
}

// Calls returns the number of Generate calls.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// LastPrompt returns the most recent prompt, or "".
func (g *Generator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}
