package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docrag/pubsub"
	"docrag/rag/jobs"
)

const (
	publishAttempts = 5
	publishBackoff  = 20 * time.Millisecond
)

// Trigger is the event payload that schedules a pipeline run. Exactly
// one of Ingest and Query is set, matching the event type.
type Trigger struct {
	RunID  string
	Ingest *IngestRequest
	Query  *QueryRequest
}

// Dispatcher subscribes to trigger events and executes the matching
// pipeline on worker goroutines. Runs are independent of each other;
// the vector store is the only shared state.
type Dispatcher struct {
	broker    *pubsub.Broker[Trigger]
	ingestion *Ingestion
	retrieval *Retrieval
	runner    *jobs.Runner
	logger    *zap.Logger
	workers   int
}

// NewDispatcher wires the dispatcher to its broker and pipelines.
func NewDispatcher(broker *pubsub.Broker[Trigger], ingestion *Ingestion, retrieval *Retrieval, runner *jobs.Runner, logger *zap.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		broker:    broker,
		ingestion: ingestion,
		retrieval: retrieval,
		runner:    runner,
		logger:    logger,
		workers:   workers,
	}
}

// Start launches the worker goroutines. They share one subscription,
// so each trigger is handled exactly once. Workers exit when ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	events := d.broker.Subscribe(ctx)
	for i := 0; i < d.workers; i++ {
		go func() {
			for event := range events {
				d.handle(ctx, event)
			}
		}()
	}
}

// DispatchIngest creates a pending ingestion run and publishes its
// trigger. The run executes asynchronously. A trigger that cannot be
// enqueued fails the run instead of leaving it PENDING forever.
func (d *Dispatcher) DispatchIngest(ctx context.Context, req IngestRequest) (*jobs.Run, error) {
	run := jobs.NewRun(jobs.KindIngest)
	if err := d.runner.Start(ctx, run); err != nil {
		return nil, err
	}
	if err := d.publish(ctx, run, pubsub.IngestRequested, Trigger{RunID: run.ID, Ingest: &req}); err != nil {
		return run, err
	}
	return run, nil
}

// DispatchQuery creates a pending retrieval run and publishes its
// trigger.
func (d *Dispatcher) DispatchQuery(ctx context.Context, req QueryRequest) (*jobs.Run, error) {
	run := jobs.NewRun(jobs.KindQuery)
	if err := d.runner.Start(ctx, run); err != nil {
		return nil, err
	}
	if err := d.publish(ctx, run, pubsub.QueryRequested, Trigger{RunID: run.ID, Query: &req}); err != nil {
		return run, err
	}
	return run, nil
}

// publish enqueues the trigger, retrying briefly while worker buffers
// are full. If no subscriber accepts it, the run is failed so callers
// and the run endpoint both see the loss.
func (d *Dispatcher) publish(ctx context.Context, run *jobs.Run, t pubsub.EventType, trigger Trigger) error {
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if d.broker.Publish(t, trigger) > 0 {
			return nil
		}
		select {
		case <-time.After(publishBackoff):
		case <-ctx.Done():
			d.runner.Fail(ctx, run, "dispatch", ctx.Err())
			return ctx.Err()
		}
	}

	err := fmt.Errorf("no worker accepted the trigger for run %s", run.ID)
	d.runner.Fail(ctx, run, "dispatch", err)
	return err
}

// handle resolves the trigger's run and executes its pipeline. A
// trigger for an already-started run resumes from the last completed
// step via the checkpointer.
func (d *Dispatcher) handle(ctx context.Context, event pubsub.Event[Trigger]) {
	trigger := event.Payload

	run, err := d.runner.Checkpointer().LoadRun(ctx, trigger.RunID)
	if err != nil {
		d.logger.Error("failed to load run", zap.String("run", trigger.RunID), zap.Error(err))
		return
	}
	if run == nil || run.State.Terminal() {
		return
	}

	switch event.Type {
	case pubsub.IngestRequested:
		if trigger.Ingest == nil {
			return
		}
		if _, err := d.ingestion.Run(ctx, run, *trigger.Ingest); err != nil {
			d.logger.Error("ingestion run failed",
				zap.String("run", run.ID),
				zap.String("source", trigger.Ingest.SourceID),
				zap.Error(err),
			)
		}
	case pubsub.QueryRequested:
		if trigger.Query == nil {
			return
		}
		if _, err := d.retrieval.Run(ctx, run, *trigger.Query); err != nil {
			d.logger.Error("retrieval run failed",
				zap.String("run", run.ID),
				zap.Error(err),
			)
		}
	}
}
