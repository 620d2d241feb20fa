package store

import (
	"context"
	"sort"
	"sync"

	"docrag/rag"
	"docrag/rag/errs"
)

// MemoryStore is a brute-force cosine store keyed by point id. It backs
// tests and index-free deployments; vectors are assumed L2-normalized,
// so similarity is a plain dot product.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	points map[string]memoryPoint
	order  map[string]int // first-insert order, the search tie-breaker
	nextID int
}

type memoryPoint struct {
	vector  []float32
	payload rag.Payload
}

// NewMemoryStore creates an in-memory store for vectors of the given
// dimension.
func NewMemoryStore(dim int) *MemoryStore {
	if dim <= 0 {
		dim = 384
	}
	return &MemoryStore{
		dim:    dim,
		points: make(map[string]memoryPoint),
		order:  make(map[string]int),
	}
}

// EnsureCollection is a no-op beyond construction.
func (s *MemoryStore) EnsureCollection(ctx context.Context) error {
	return nil
}

// Upsert writes the given points, replacing existing ids in place.
func (s *MemoryStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []rag.Payload) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return errs.InvalidArgumentf("ids, vectors and payloads must align: %d/%d/%d", len(ids), len(vectors), len(payloads))
	}
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return errs.InvalidArgumentf("vector %d has dimension %d, collection expects %d", i, len(vec), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if _, exists := s.points[id]; !exists {
			s.order[id] = s.nextID
			s.nextID++
		}
		s.points[id] = memoryPoint{vector: vectors[i], payload: payloads[i]}
	}
	return nil
}

// Search ranks all points by dot product against the query vector.
// Equal scores break ties by insertion order.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) (rag.RetrievalResult, error) {
	if topK <= 0 {
		return rag.RetrievalResult{}, errs.InvalidArgumentf("top_k must be positive, got %d", topK)
	}
	if len(vector) != s.dim {
		return rag.RetrievalResult{}, errs.InvalidArgumentf("query vector has dimension %d, collection expects %d", len(vector), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]rag.ScoredPoint, 0, len(s.points))
	for id, p := range s.points {
		scored = append(scored, rag.ScoredPoint{
			ID:      id,
			Score:   dot(p.vector, vector),
			Payload: p.payload,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return s.order[scored[i].ID] < s.order[scored[j].ID]
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return rag.NewRetrievalResult(scored), nil
}

// DeleteBySource removes all points whose payload carries the source.
func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.payload.Source == source {
			delete(s.points, id)
			delete(s.order, id)
		}
	}
	return nil
}

// Count returns the number of stored points.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.points)), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// IDs returns the stored point ids, for inspection in tests.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a stored point's payload by id.
func (s *MemoryStore) Get(id string) (rag.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	return p.payload, ok
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
