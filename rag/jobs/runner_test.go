package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docrag/rag/errs"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunnerWithPolicy(NewMemoryCheckpointer(), zap.NewNop(), 3, time.Millisecond)
}

func TestRunStepPersistsResultAndState(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindIngest)
	require.NoError(t, r.Start(ctx, run))

	result, err := RunStep(ctx, r, run, "load-and-chunk", StateLoaded, func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)
	assert.Equal(t, StateLoaded, run.State)

	saved, err := r.Checkpointer().LoadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, saved.State)
}

func TestRunStepSkipsCompletedStep(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindIngest)
	require.NoError(t, r.Start(ctx, run))

	executions := 0
	step := func(context.Context) (int, error) {
		executions++
		return 42, nil
	}

	first, err := RunStep(ctx, r, run, "embed-and-upsert", StateEmbeddedAndStored, step)
	require.NoError(t, err)

	// A resumed run re-enters the same step and must not execute it again.
	second, err := RunStep(ctx, r, run, "embed-and-upsert", StateEmbeddedAndStored, step)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, executions)
}

func TestRunStepRetriesRetryableErrors(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindQuery)
	require.NoError(t, r.Start(ctx, run))

	attempts := 0
	result, err := RunStep(ctx, r, run, "embed-and-search", StateSearched, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errs.Embedding(assert.AnError)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateSearched, run.State)
}

func TestRunStepDoesNotRetryFatalErrors(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindQuery)
	require.NoError(t, r.Start(ctx, run))

	attempts := 0
	_, err := RunStep(ctx, r, run, "embed-and-search", StateSearched, func(context.Context) (string, error) {
		attempts++
		return "", errs.InvalidArgumentf("top_k must be positive")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, StateFailed, run.State)
	assert.Contains(t, run.Err, "invalid_argument")
}

func TestRunStepExhaustsRetriesAndFails(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindIngest)
	require.NoError(t, r.Start(ctx, run))

	attempts := 0
	_, err := RunStep(ctx, r, run, "embed-and-upsert", StateEmbeddedAndStored, func(context.Context) (int, error) {
		attempts++
		return 0, errs.StoreUnavailable(assert.AnError)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateFailed, run.State)
	assert.Contains(t, run.Err, "store_unavailable")
}

func TestFinishAndTerminalStates(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	run := NewRun(KindIngest)
	require.NoError(t, r.Start(ctx, run))

	require.NoError(t, r.Finish(ctx, run))
	assert.Equal(t, StateDone, run.State)
	assert.True(t, run.State.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePending.Terminal())
}

func TestMemoryCheckpointerUnknownRun(t *testing.T) {
	cp := NewMemoryCheckpointer()

	run, err := cp.LoadRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, run)

	_, done, err := cp.LoadStep(context.Background(), "missing", "step")
	require.NoError(t, err)
	assert.False(t, done)
}
