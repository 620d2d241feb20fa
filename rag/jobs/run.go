// Package jobs provides resumable, checkpointed execution of pipeline
// runs: each run is a short sequence of named steps whose results are
// persisted before the next step starts, so a resumed run never repeats
// completed work.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which pipeline a run executes.
type Kind string

const (
	KindIngest Kind = "ingest"
	KindQuery  Kind = "query"
)

// State is a run's position in its pipeline's state machine.
type State string

const (
	StatePending           State = "PENDING"
	StateLoaded            State = "LOADED"
	StateEmbeddedAndStored State = "EMBEDDED_AND_STORED"
	StateSearched          State = "SEARCHED"
	StateAnswered          State = "ANSWERED"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Run is one scheduled pipeline execution.
type Run struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Err       string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRun creates a pending run of the given kind.
func NewRun(kind Kind) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
