// Package ext defines the extension system for jobrunner.
// Extensions are notified of lifecycle events (job created, started,
// finished, failed, finalized, etc.) and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Reasons passed to JobFinalized.
const (
	// ReasonFinalized means a caller removed the job explicitly.
	ReasonFinalized = "finalized"
	// ReasonExpired means the sweeper evicted the job after its TTL.
	ReasonExpired = "expired"
)

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job record and its directory exist.
type JobCreated interface {
	OnJobCreated(ctx context.Context, r *job.Record) error
}

// JobSubmitted is called after an invocation is pushed onto the queue.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, inv *job.Invocation) error
}

// JobStarted is called when a worker has claimed a job and is about to
// run its task.
type JobStarted interface {
	OnJobStarted(ctx context.Context, inv *job.Invocation) error
}

// JobFinished is called after a task returned successfully and the result
// was recorded.
type JobFinished interface {
	OnJobFinished(ctx context.Context, inv *job.Invocation, elapsed time.Duration) error
}

// JobFailed is called after a job was recorded as failed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, inv *job.Invocation, err error) error
}

// JobFinalized is called after a job's record and directory were removed.
type JobFinalized interface {
	OnJobFinalized(ctx context.Context, jobID id.JobID, reason string) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// SweepCompleted is called at the end of every cleanup pass.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, evicted int, elapsed time.Duration) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
