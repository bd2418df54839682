package indexer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

// ErrEmptyDocument indicates a source that yielded no text.
var ErrEmptyDocument = errors.New("document has no text")

// Document is one loaded source file.
type Document struct {
	// Source is the file name as configured.
	Source string
	// Text is the full extracted text.
	Text string
}

// LoadFunc extracts the text of the file at path.
type LoadFunc func(path string) (string, error)

// loaders maps lower-case file extensions to their extractor.
// Anything unlisted is read as UTF-8 text.
var loaders = map[string]LoadFunc{
	".md":       loadMarkdown,
	".markdown": loadMarkdown,
	".pdf":      loadPDF,
}

// LoaderFor returns the extractor used for name.
func LoaderFor(name string) LoadFunc {
	if fn, ok := loaders[strings.ToLower(filepath.Ext(name))]; ok {
		return fn
	}
	return loadText
}

// LoadDocuments loads each of files from dir. A file that cannot be read or
// yields no text is skipped with a warning and reported in skipped. A name
// listed more than once is loaded once. Loading nothing at all is a
// configuration error.
func LoadDocuments(dir string, files []string, logger *zap.Logger) (docs []Document, skipped []string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(files) == 0 {
		return nil, nil, apperr.Configuration("load_sources", errors.New("no source files configured"))
	}

	seen := make(map[string]struct{}, len(files))
	for _, name := range files {
		if _, dup := seen[name]; dup {
			logger.Warn("ignoring repeated source file", zap.String("file", name))
			continue
		}
		seen[name] = struct{}{}

		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}

		text, loadErr := LoaderFor(name)(path)
		if loadErr == nil && strings.TrimSpace(text) == "" {
			loadErr = ErrEmptyDocument
		}
		if loadErr != nil {
			logger.Warn("skipping source file", zap.String("file", path), zap.Error(loadErr))
			skipped = append(skipped, name)
			continue
		}

		docs = append(docs, Document{Source: name, Text: text})
		logger.Debug("loaded source file",
			zap.String("file", path),
			zap.Int("runes", utf8.RuneCountInString(text)),
		)
	}

	if len(docs) == 0 {
		return nil, skipped, apperr.Configuration("load_sources",
			fmt.Errorf("none of %d source files could be loaded from %s", len(files), dir))
	}
	return docs, skipped, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func loadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", filepath.Base(path))
	}
	return string(data), nil
}

// loadMarkdown returns the document's text with markup removed and blocks
// separated by blank lines.
func loadMarkdown(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	src = bytes.TrimPrefix(src, utf8BOM)
	return markdownText(src), nil
}

func markdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var (
		blocks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(src))
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				flush()
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return strings.Join(blocks, "\n\n")
}

// loadPDF returns the plain text of every page, pages separated by blank lines.
func loadPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if s := strings.TrimSpace(pageText); s != "" {
			pages = append(pages, s)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
