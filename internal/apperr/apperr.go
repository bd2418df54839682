// Package apperr defines the error taxonomy shared by the indexer, the query
// engine and the HTTP boundary.
//
// Every failure that crosses a component boundary is wrapped in an *Error
// carrying a Kind. Callers decide what to do from the kind alone:
//
//	if errors.Is(err, apperr.ErrValidation) {
//	    return c.JSON(http.StatusBadRequest, ...)
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller must react to it.
type Kind string

const (
	// KindConfiguration is fatal at startup: missing credentials, no source
	// files, missing or incompatible index.
	KindConfiguration Kind = "configuration"
	// KindIndexBuild aborts an indexing run. No partial index becomes current.
	KindIndexBuild Kind = "index_build"
	// KindRetrieval fails a single request (question embedding or index query).
	KindRetrieval Kind = "retrieval"
	// KindGeneration fails a single request (language model call).
	KindGeneration Kind = "generation"
	// KindValidation rejects a request before any external call.
	KindValidation Kind = "validation"
)

// Kind sentinels for errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrIndexBuild    = errors.New("index build error")
	ErrRetrieval     = errors.New("retrieval error")
	ErrGeneration    = errors.New("generation error")
	ErrValidation    = errors.New("validation error")
)

var sentinels = map[Kind]error{
	KindConfiguration: ErrConfiguration,
	KindIndexBuild:    ErrIndexBuild,
	KindRetrieval:     ErrRetrieval,
	KindGeneration:    ErrGeneration,
	KindValidation:    ErrValidation,
}

// Error is a classified failure.
type Error struct {
	Kind Kind   // How the caller must react
	Op   string // The operation that failed (e.g. "load_sources", "generate")
	Err  error  // The underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinels[e.Kind], e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration wraps err as a configuration error.
func Configuration(op string, err error) error { return New(KindConfiguration, op, err) }

// IndexBuild wraps err as an index build error.
func IndexBuild(op string, err error) error { return New(KindIndexBuild, op, err) }

// Retrieval wraps err as a retrieval error.
func Retrieval(op string, err error) error { return New(KindRetrieval, op, err) }

// Generation wraps err as a generation error.
func Generation(op string, err error) error { return New(KindGeneration, op, err) }

// Validation builds a validation error from a message.
func Validation(op, msg string) error { return New(KindValidation, op, errors.New(msg)) }

// KindOf returns the kind of the outermost classified error in err's chain,
// or "" if err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
