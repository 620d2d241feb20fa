package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docrag/rag/errs"
)

// Runner executes pipeline steps against a checkpointer: a step whose
// result is already checkpointed is not executed again, and transient
// step failures are retried with exponential backoff before the run is
// failed.
type Runner struct {
	cp       Checkpointer
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

// NewRunner creates a runner with the default retry policy of three
// attempts starting at 500ms backoff.
func NewRunner(cp Checkpointer, logger *zap.Logger) *Runner {
	return NewRunnerWithPolicy(cp, logger, 3, 500*time.Millisecond)
}

// NewRunnerWithPolicy creates a runner with a custom retry policy.
func NewRunnerWithPolicy(cp Checkpointer, logger *zap.Logger, attempts int, backoff time.Duration) *Runner {
	if attempts < 1 {
		attempts = 1
	}
	return &Runner{
		cp:       cp,
		logger:   logger,
		attempts: attempts,
		backoff:  backoff,
	}
}

// Checkpointer exposes the underlying checkpoint store.
func (r *Runner) Checkpointer() Checkpointer {
	return r.cp
}

// Start persists the run's initial state.
func (r *Runner) Start(ctx context.Context, run *Run) error {
	return r.saveRun(ctx, run)
}

// Finish transitions the run to DONE.
func (r *Runner) Finish(ctx context.Context, run *Run) error {
	run.State = StateDone
	return r.saveRun(ctx, run)
}

func (r *Runner) saveRun(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	return r.cp.SaveRun(ctx, run)
}

// Fail transitions the run to FAILED, recording the failing step's
// error kind and message.
func (r *Runner) Fail(ctx context.Context, run *Run, step string, err error) {
	run.State = StateFailed
	run.Err = fmt.Sprintf("%s: %s: %v", step, errs.Kind(err), err)
	if saveErr := r.saveRun(ctx, run); saveErr != nil {
		r.logger.Error("failed to persist run failure",
			zap.String("run", run.ID),
			zap.Error(saveErr),
		)
	}
}

// RunStep executes one named step of a run. The checkpointed result is
// returned as-is when the step already completed; otherwise fn is
// executed (with retries for retryable error kinds), its result is
// checkpointed, and the run transitions to next.
func RunStep[T any](ctx context.Context, r *Runner, run *Run, step string, next State, fn func(context.Context) (T, error)) (T, error) {
	var result T

	if data, done, err := r.cp.LoadStep(ctx, run.ID, step); err != nil {
		return result, err
	} else if done {
		if err := json.Unmarshal(data, &result); err != nil {
			return result, fmt.Errorf("failed to decode checkpoint of step %s: %w", step, err)
		}
		r.logger.Debug("step already completed, skipping",
			zap.String("run", run.ID),
			zap.String("step", step),
		)
		return result, nil
	}

	var err error
	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			break
		}
		if attempt >= r.attempts || !errs.Retryable(err) {
			r.Fail(ctx, run, step, err)
			return result, err
		}

		delay := r.backoff << (attempt - 1)
		r.logger.Warn("step failed, retrying",
			zap.String("run", run.ID),
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Fail(ctx, run, step, ctx.Err())
			return result, ctx.Err()
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("failed to encode result of step %s: %w", step, err)
	}
	if err := r.cp.SaveStep(ctx, run.ID, step, data); err != nil {
		return result, err
	}

	run.State = next
	if err := r.saveRun(ctx, run); err != nil {
		return result, err
	}

	r.logger.Info("step completed",
		zap.String("run", run.ID),
		zap.String("step", step),
		zap.String("state", string(next)),
	)
	return result, nil
}
