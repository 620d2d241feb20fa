package jobs

import (
	"context"
	"sync"
)

// Checkpointer persists run state and per-step results. Step results
// are opaque JSON keyed by (run id, step name).
type Checkpointer interface {
	// SaveRun persists the run's current state.
	SaveRun(ctx context.Context, run *Run) error

	// LoadRun returns the persisted run, or nil if unknown.
	LoadRun(ctx context.Context, id string) (*Run, error)

	// SaveStep records a completed step's result.
	SaveStep(ctx context.Context, runID, step string, result []byte) error

	// LoadStep returns a completed step's result, reporting whether the
	// step has run before.
	LoadStep(ctx context.Context, runID, step string) ([]byte, bool, error)
}

// MemoryCheckpointer keeps checkpoints in process memory. Suitable for
// tests and single-process deployments without durability needs.
type MemoryCheckpointer struct {
	mu    sync.RWMutex
	runs  map[string]Run
	steps map[string][]byte
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{
		runs:  make(map[string]Run),
		steps: make(map[string][]byte),
	}
}

func (c *MemoryCheckpointer) SaveRun(ctx context.Context, run *Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[run.ID] = *run
	return nil
}

func (c *MemoryCheckpointer) LoadRun(ctx context.Context, id string) (*Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	run, ok := c.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (c *MemoryCheckpointer) SaveStep(ctx context.Context, runID, step string, result []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[runID+"/"+step] = result
	return nil
}

func (c *MemoryCheckpointer) LoadStep(ctx context.Context, runID, step string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.steps[runID+"/"+step]
	return result, ok, nil
}
