// Package errs classifies pipeline failures so the orchestration layer
// can decide what may be retried.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction means the source document could not be parsed. Fatal.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbedding means the embedding model invocation failed. Retryable.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStoreUnavailable means the vector index could not be reached.
	// Retryable with backoff.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrInvalidArgument means the caller supplied malformed parameters.
	// Fatal, never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrGeneration means the generation capability failed. Retryable by
	// the orchestrator, never inside a pipeline step.
	ErrGeneration = errors.New("generation failed")
)

// Extraction wraps err as an extraction failure.
func Extraction(err error) error {
	return fmt.Errorf("%w: %w", ErrExtraction, err)
}

// Embedding wraps err as an embedding failure.
func Embedding(err error) error {
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}

// StoreUnavailable wraps err as a store connectivity failure.
func StoreUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// InvalidArgumentf builds a fatal argument error.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Generation wraps err as a generation failure.
func Generation(err error) error {
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}

// Retryable reports whether err is worth executing again with the same
// input. Extraction and argument errors are final; everything the
// pipelines classify as transient is not.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrGeneration):
		return true
	default:
		return false
	}
}

// Kind returns the taxonomy name for err, or "internal" when the error
// was not produced by a pipeline step.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrGeneration):
		return "generation"
	default:
		return "internal"
	}
}
