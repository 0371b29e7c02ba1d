// Package jobrunner provides asynchronous job execution with status
// tracking. Callers create a job, submit a named task with positional
// arguments, and poll for a terminal state while the task runs out-of-band,
// either on a local bounded worker pool or on independent worker processes
// fed through a Redis broker.
//
// jobrunner is designed as a library. Build an engine, register tasks as
// ordinary Go functions, and use the returned job handle to poll:
//
//	reg := job.NewRegistry()
//	reg.Register(job.NewDefinition("deg.analyze", analyze))
//
//	eng, err := engine.New(jobrunner.DefaultConfig(), engine.WithRegistry(reg))
//	if err != nil { ... }
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	rec, err := eng.CreateJob(ctx, "deg")
//	err = eng.Submit(ctx, rec.ID.String(), "deg.analyze", "counts.tsv")
//	status, ok := eng.GetPublicStatus(ctx, rec.ID.String())
//
// Tasks find their scratch directory with job.WorkDirFrom(ctx).
//
// # Architecture
//
// This root package holds configuration and error kinds only. The job
// package defines the record, its state machine and the task registry.
// State lives behind job.Store, implemented by store/memory, store/sqlite
// and store/redis. Execution is split between queue (where invocations
// wait) and worker (what runs them). The engine package selects the
// backends once at construction and exposes the public operations; api
// and client carry them over HTTP.
package jobrunner
