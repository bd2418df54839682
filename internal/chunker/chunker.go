// Package chunker splits documents into overlapping chunks for embedding.
//
// Splitting is recursive over a ranked list of separators: a chunk boundary
// is placed after the last paragraph break that fits, else the last line
// break, else the last sentence end, and so on down to a hard character cut.
// Separators stay attached to the text they terminate, so no character of the
// source is ever dropped.
//
// Every chunk after the first starts with the Overlap characters that end the
// previous chunk. Stripping that prefix from each chunk and concatenating
// reproduces the source exactly (see Join).
//
// All sizes are measured in runes.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig indicates invalid splitter configuration.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// DefaultSeparators ranks boundaries from paragraph down to word.
// Japanese sentence and clause punctuation is listed alongside the ASCII forms.
var DefaultSeparators = []string{
	"\n\n",
	"\n",
	"。", "！", "？", ". ", "! ", "? ",
	"、", ", ",
	" ",
}

// Chunk is a contiguous piece of one document.
type Chunk struct {
	// Source identifies the document (its file name).
	Source string
	// Sequence is the position of the chunk within its document, from 0.
	Sequence int
	// Text is the chunk content, overlap prefix included.
	Text string
	// Start is the rune offset in the document where Text begins.
	Start int
	// Overlap is the number of leading runes of Text repeated from the
	// previous chunk. Always 0 for the first chunk.
	Overlap int
}

// ID returns the chunk's stable identifier, "<source>#<sequence>".
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.Source, c.Sequence)
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return len([]rune(c.Text))
}

// Config holds splitter configuration.
type Config struct {
	// MaxChunkSize is the upper bound on chunk length in runes.
	MaxChunkSize int
	// Overlap is the number of runes shared with the previous chunk.
	// Must satisfy 0 <= Overlap < MaxChunkSize.
	Overlap int
	// Separators overrides DefaultSeparators when non-empty.
	Separators []string
}

// Validate checks the size and overlap invariants.
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", ErrInvalidConfig, c.MaxChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be >= 0, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max chunk size %d", ErrInvalidConfig, c.Overlap, c.MaxChunkSize)
	}
	for i, sep := range c.Separators {
		if sep == "" {
			return fmt.Errorf("%w: separator %d is empty", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Splitter splits text into chunks. It is immutable and safe for concurrent use.
type Splitter struct {
	maxSize    int
	overlap    int
	separators [][]rune
}

// New creates a Splitter from config.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	runeSeps := make([][]rune, len(seps))
	for i, sep := range seps {
		runeSeps[i] = []rune(sep)
	}

	return &Splitter{
		maxSize:    cfg.MaxChunkSize,
		overlap:    cfg.Overlap,
		separators: runeSeps,
	}, nil
}

// MaxChunkSize returns the configured chunk size bound.
func (s *Splitter) MaxChunkSize() int { return s.maxSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into chunks attributed to source.
// Empty text yields no chunks.
func (s *Splitter) Split(source, text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	pos := 0
	for pos < n {
		// The overlap counts against the size bound, so the fresh part of
		// each chunk gets what is left.
		ov := min(s.overlap, pos)
		limit := pos + s.maxSize - ov

		end := n
		if limit < n {
			end = s.breakPoint(runes, pos, limit)
		}

		start := pos - ov
		chunks = append(chunks, Chunk{
			Source:   source,
			Sequence: len(chunks),
			Text:     string(runes[start:end]),
			Start:    start,
			Overlap:  ov,
		})
		pos = end
	}

	return chunks
}

// breakPoint returns the cut position in (pos, limit] after the highest
// ranked separator found in runes[pos:limit], or limit for a hard cut.
func (s *Splitter) breakPoint(runes []rune, pos, limit int) int {
	window := runes[pos:limit]
	for _, sep := range s.separators {
		if i := lastIndex(window, sep); i >= 0 {
			return pos + i + len(sep)
		}
	}
	return limit
}

// lastIndex returns the index of the last occurrence of sep in s, or -1.
func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Join reassembles the text a sequence of chunks was split from by dropping
// each chunk's overlap prefix.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		runes := []rune(c.Text)
		b.WriteString(string(runes[c.Overlap:]))
	}
	return b.String()
}
