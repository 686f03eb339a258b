package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
	"github.com/seantiz/sisyphus/internal/simulator"
	"github.com/seantiz/sisyphus/internal/store"
)

// Engine dispatches submitted tasks and drives them through their lifecycle.
type Engine struct {
	store      store.Store
	simulators *simulator.Registry
	metrics    *Metrics
	logger     *slog.Logger
	wg         sync.WaitGroup
	broker     *EventBroker
	now        func() time.Time
}

// NewEngine creates a new execution engine. m may be nil.
func NewEngine(s store.Store, reg *simulator.Registry, m *Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:      s,
		simulators: reg,
		metrics:    m,
		logger:     logger,
		broker:     NewEventBroker(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit validates and persists a new pending task, then executes it.
//
// Blocking requests run to completion before Submit returns, and the result is
// whatever Execute returned. Detached requests return the pending snapshot
// immediately; the lifecycle continues in a goroutine that operates on a copy
// of the task.
func (e *Engine) Submit(ctx context.Context, req model.NewTask) (*model.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.simulators.Resolve(req.Type); err != nil {
		return nil, err
	}

	t := &model.Task{
		ID:          model.NewID(),
		Type:        req.Type,
		Blocking:    req.Blocking,
		Params:      req.Params,
		Status:      model.StatusPending,
		SubmittedAt: e.now(),
	}

	// The topic exists before the record does, so event subscribers never
	// see a task of this process without one.
	e.broker.Open(t.ID)
	if err := e.store.InsertTask(context.WithoutCancel(ctx), t); err != nil {
		e.broker.Close(t.ID)
		return nil, &SubmissionError{TaskID: t.ID, Err: err}
	}
	e.metrics.recordSubmitted(t.Type, t.Blocking)

	if t.Blocking {
		return e.Execute(ctx, t)
	}

	tCopy := *t
	e.wg.Go(func() {
		if _, err := e.Execute(context.WithoutCancel(ctx), &tCopy); err != nil {
			e.logDetachedFailure(err)
		}
	})

	return t, nil
}

// Wait blocks until all detached executions complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Execute moves a pending task to running, runs its simulator and moves it to
// finished. The task passed in is not modified.
//
// If the running transition cannot be persisted the simulator is not invoked
// and the returned task is nil. If the finished transition cannot be persisted
// the returned task still reflects the completed work, alongside the error.
// Store calls ignore cancellation of ctx.
func (e *Engine) Execute(ctx context.Context, t *model.Task) (*model.Task, error) {
	e.broker.Open(t.ID)
	defer e.broker.Close(t.ID)

	ctx = context.WithoutCancel(ctx)
	sim, err := e.simulators.Resolve(t.Type)
	if err != nil {
		return nil, fmt.Errorf("execute task %s: %w", t.ID, err)
	}

	task := *t
	startedAt := e.now()
	if err := e.store.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:    model.StatusRunning,
		StartedAt: &startedAt,
	}); err != nil {
		e.metrics.recordError(StageStart)
		return nil, &ExecutionError{TaskID: task.ID, Stage: StageStart, Err: err}
	}
	task.Status = model.StatusRunning
	task.StartedAt = &startedAt
	e.broker.Publish(model.TaskEvent{TaskID: task.ID, Status: model.StatusRunning, At: startedAt})

	checksum := e.simulate(sim, task.Type, task.Params)

	finishedAt := e.now()
	task.Status = model.StatusFinished
	task.FinishedAt = &finishedAt
	task.Result = &checksum
	e.metrics.recordRuntime(task.Type, finishedAt.Sub(startedAt))

	if err := e.store.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:     model.StatusFinished,
		FinishedAt: &finishedAt,
		Result:     &checksum,
	}); err != nil {
		e.metrics.recordError(StageFinish)
		return &task, &ExecutionError{TaskID: task.ID, Stage: StageFinish, Err: err}
	}
	e.broker.Publish(model.TaskEvent{TaskID: task.ID, Status: model.StatusFinished, At: finishedAt})

	return &task, nil
}

func (e *Engine) simulate(sim simulator.Simulator, t model.TaskType, p model.TaskParams) uint64 {
	e.metrics.addInFlight(t, 1)
	defer e.metrics.addInFlight(t, -1)
	return sim.Simulate(p)
}

func (e *Engine) logDetachedFailure(err error) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		e.logger.Error("detached task failed",
			"task_id", execErr.TaskID,
			"stage", string(execErr.Stage),
			"error", execErr.Err,
		)
		return
	}
	e.logger.Error("detached task failed", "error", err)
}
