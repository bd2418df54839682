package vectorstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ManifestFile is the manifest's file name inside an index directory.
	ManifestFile = "manifest.yaml"

	// vectorsDir holds the chromem database inside an index directory.
	vectorsDir = "vectors"

	manifestVersion = 1
)

// ChunkingParams records how the indexed text was split.
type ChunkingParams struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	Overlap      int `yaml:"overlap"`
}

// Manifest describes a built index.
type Manifest struct {
	Version           int            `yaml:"version"`
	BuildID           string         `yaml:"build_id"`
	EmbeddingProvider string         `yaml:"embedding_provider"`
	EmbeddingModel    string         `yaml:"embedding_model"`
	Dimension         int            `yaml:"dimension"`
	ChunkCount        int            `yaml:"chunk_count"`
	Collection        string         `yaml:"collection"`
	Sources           []string       `yaml:"sources"`
	Chunking          ChunkingParams `yaml:"chunking"`
	BuiltAt           time.Time      `yaml:"built_at"`
}

// ReadManifest reads the manifest of the index at dir.
// It returns ErrIndexNotFound when dir or its manifest does not exist.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrCorruptIndex, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	switch {
	case m.Version != manifestVersion:
		return fmt.Errorf("%w: unsupported manifest version %d", ErrCorruptIndex, m.Version)
	case m.Dimension <= 0:
		return fmt.Errorf("%w: manifest dimension must be positive", ErrCorruptIndex)
	case m.ChunkCount <= 0:
		return fmt.Errorf("%w: manifest chunk count must be positive", ErrCorruptIndex)
	case m.Collection == "":
		return fmt.Errorf("%w: manifest has no collection", ErrCorruptIndex)
	}
	return nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
