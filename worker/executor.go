// Package worker runs queued invocations. An Executor takes one invocation
// through the job lifecycle and a Pool drains a queue with a fixed number
// of goroutines, either in-process or as a broker consumer.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/middleware"
)

// Executor runs a single invocation: it claims the job, resolves and runs
// the task through middleware, and records the outcome.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithMiddleware appends middleware. Recover always runs outermost.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) {
		e.mw = middleware.Chain(e.mw, middleware.Chain(mws...))
	}
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		mw:         middleware.Recover(logger),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute takes inv through the lifecycle. Task failures and panics are
// recorded on the job and never returned; the error reports only store
// failures that left the job's outcome unrecorded.
func (e *Executor) Execute(ctx context.Context, inv *job.Invocation) error {
	jobID := inv.JobID.String()

	err := e.store.UpdateJob(ctx, inv.JobID, job.Update{Status: job.StatusRunning, At: e.now()})
	switch {
	case errors.Is(err, jobrunner.ErrJobNotFound):
		e.logger.Debug("job finalized before pickup, dropping",
			slog.String("job_id", jobID),
			slog.String("task", inv.Task),
		)
		return nil
	case errors.Is(err, jobrunner.ErrInvalidState):
		e.logger.Warn("job already claimed, dropping duplicate delivery",
			slog.String("job_id", jobID),
			slog.String("task", inv.Task),
		)
		return nil
	case err != nil:
		return fmt.Errorf("jobrunner/worker: claim %s: %w", jobID, err)
	}

	e.extensions.EmitJobStarted(ctx, inv)

	rec, err := e.store.GetJob(ctx, inv.JobID)
	if err != nil {
		if errors.Is(err, jobrunner.ErrJobNotFound) {
			e.logger.Debug("job finalized after pickup", slog.String("job_id", jobID))
			return nil
		}
		return e.fail(ctx, inv, fmt.Errorf("load job: %w", err))
	}

	fn, ok := e.registry.Get(inv.Task)
	if !ok {
		e.logger.Error("task not registered",
			slog.String("job_id", jobID),
			slog.String("task", inv.Task),
		)
		return e.fail(ctx, inv, fmt.Errorf("task not registered: %s", inv.Task))
	}

	taskCtx := job.WithJobID(job.WithWorkDir(ctx, rec.WorkDir), jobID)

	var value any
	start := e.now()
	err = e.mw(taskCtx, inv, func(ctx context.Context) error {
		v, taskErr := fn(ctx, inv.Args)
		value = v
		return taskErr
	})
	elapsed := e.now().Sub(start)

	// The outcome is recorded even when the task was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return e.fail(ctx, inv, err)
	}

	result, err := encodeResult(value)
	if err != nil {
		return e.fail(ctx, inv, err)
	}

	return e.finish(ctx, inv, result, elapsed)
}

func (e *Executor) finish(ctx context.Context, inv *job.Invocation, result json.RawMessage, elapsed time.Duration) error {
	err := e.store.UpdateJob(ctx, inv.JobID, job.Update{
		Status: job.StatusFinished,
		Result: result,
		At:     e.now(),
	})
	if err != nil {
		return e.outcomeNotRecorded(inv, job.StatusFinished, err)
	}
	e.extensions.EmitJobFinished(ctx, inv, elapsed)
	return nil
}

func (e *Executor) fail(ctx context.Context, inv *job.Invocation, taskErr error) error {
	err := e.store.UpdateJob(ctx, inv.JobID, job.Update{
		Status: job.StatusFailed,
		Error:  taskErr.Error(),
		At:     e.now(),
	})
	if err != nil {
		return e.outcomeNotRecorded(inv, job.StatusFailed, err)
	}
	e.extensions.EmitJobFailed(ctx, inv, taskErr)
	return nil
}

// outcomeNotRecorded handles a failed terminal update. A job finalized
// while its task ran is gone, which is not an error.
func (e *Executor) outcomeNotRecorded(inv *job.Invocation, status job.Status, err error) error {
	if errors.Is(err, jobrunner.ErrJobNotFound) {
		e.logger.Debug("job finalized while running, outcome discarded",
			slog.String("job_id", inv.JobID.String()),
			slog.String("task", inv.Task),
		)
		return nil
	}
	e.logger.Error("failed to record job outcome",
		slog.String("job_id", inv.JobID.String()),
		slog.String("task", inv.Task),
		slog.String("status", string(status)),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("jobrunner/worker: record %s: %w", status, err)
}

// encodeResult serializes a task's return value. A nil value, or one that
// encodes to JSON null, means the job has no result.
func encodeResult(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("result not serializable: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}
