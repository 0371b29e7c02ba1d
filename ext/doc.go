// Package ext defines the extension system for jobrunner.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs or forwarding notifications.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobFinished(ctx context.Context, inv *job.Invocation, elapsed time.Duration) error {
//	    log.Printf("job %s finished in %s", inv.JobID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: a record and its work directory exist
//   - [JobSubmitted]: an invocation was pushed onto the queue
//   - [JobStarted]: a worker claimed the job
//   - [JobFinished]: the task returned and its result was recorded
//   - [JobFailed]: the job was recorded as failed
//   - [JobFinalized]: the record and directory were removed
//
// # Other Hooks
//
//   - [SweepCompleted]: a cleanup pass ended
//   - [Shutdown]: the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt job processing.
package ext
