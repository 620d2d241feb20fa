// Package store persists embedding vectors and serves similarity
// search over them.
package store

import (
	"context"

	"docrag/rag"
)

// VectorStore defines the interface for vector storage operations.
// Writes are keyed by caller-supplied ids; writing an existing id
// replaces its vector and payload as one unit.
type VectorStore interface {
	// EnsureCollection creates the vector collection if it does not
	// exist. Idempotent; never destroys existing data.
	EnsureCollection(ctx context.Context) error

	// Upsert writes index-aligned (id, vector, payload) triples.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []rag.Payload) error

	// Search returns at most topK stored payloads ranked by descending
	// similarity to the query vector.
	Search(ctx context.Context, vector []float32, topK int) (rag.RetrievalResult, error)

	// DeleteBySource removes all points ingested from one source.
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the number of stored points.
	Count(ctx context.Context) (int64, error)

	// Close releases any connections or resources.
	Close() error
}

// Config holds configuration for vector store implementations. The
// dimension and distance metric are fixed once the collection exists.
type Config struct {
	IndexName string
	KeyPrefix string
	Dim       int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		IndexName: "docs",
		KeyPrefix: "vec:",
		Dim:       384,
	}
}
