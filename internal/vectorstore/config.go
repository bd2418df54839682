package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrIndexNotFound is returned when no index exists at the configured path.
	ErrIndexNotFound = errors.New("index not found")

	// ErrEmptyRecords is returned when Build is called without records.
	ErrEmptyRecords = errors.New("no records to index")

	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelMismatch is returned when the index was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrCorruptIndex is returned when the stored vectors disagree with the manifest.
	ErrCorruptIndex = errors.New("corrupt index")
)

// collectionNamePattern matches valid collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds configuration for the on-disk index.
type Config struct {
	// Path is the index directory.
	// Default: "chroma_db"
	Path string

	// Collection is the chromem collection name.
	// Default: "bella"
	Collection string

	// Compress enables gzip compression for stored vectors.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "chroma_db"
	}
	if c.Collection == "" {
		c.Collection = "bella"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// expandPath expands ~ to home directory and cleans the result.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Clean(path), nil
}
