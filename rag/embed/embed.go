// Package embed turns text batches into fixed-dimension, L2-normalized
// vectors through an eino embedding model.
package embed

import (
	"context"
	"math"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"

	"docrag/rag/errs"
)

// Service wraps an embedding model for vector generation. The model is
// stateless per call; a mutex keeps one batch in flight per process
// instance, which is the safe assumption for local backends.
type Service struct {
	embedder embedding.Embedder
	dim      int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewService creates an embedding service producing vectors of the
// given dimension.
func NewService(embedder embedding.Embedder, dim int, logger *zap.Logger) *Service {
	if dim <= 0 {
		dim = 384
	}
	return &Service{
		embedder: embedder,
		dim:      dim,
		logger:   logger,
	}
}

// Embed generates one normalized vector per input text, index-aligned
// with the input. An empty batch returns an empty result without
// touching the model.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	s.mu.Lock()
	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	s.mu.Unlock()
	if err != nil {
		return nil, errs.Embedding(err)
	}
	if len(vectors) != len(texts) {
		return nil, errs.InvalidArgumentf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	result := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, errs.InvalidArgumentf("embedding dimension %d, expected %d", len(vec), s.dim)
		}
		result[i] = normalize(vec)
	}

	s.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Int("dim", s.dim),
	)

	return result, nil
}

// EmbedOne generates a normalized vector for a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimension.
func (s *Service) Dimension() int {
	return s.dim
}

// normalize converts to float32 and scales to unit L2 norm, so cosine
// similarity reduces to a dot product in the store.
func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(v / norm)
	}
	return result
}
