// Package engine wires the jobrunner subsystems together and exposes the
// application-level API: create a job, submit a task for it, poll its
// status, and finalize it.
//
// The engine package sits above every subsystem package and below the
// application layer. The root jobrunner package only holds configuration
// and error kinds, so it can be imported everywhere without a cycle.
//
// # Backends
//
// The backend is chosen once, in New. When Config.BrokerURL is set and the
// Redis server answers a ping within Config.BrokerDialTimeout, jobs are
// stored in Redis and invocations travel through a Redis list consumed by
// worker processes. Otherwise the engine runs locally: records live in
// process memory (or SQLite when Config.StatePath is set) and a pool of
// Config.MaxConcurrent goroutines executes tasks in submission order. An
// unreachable broker is logged as a warning, never a startup failure.
//
// # Usage
//
//	reg := job.NewRegistry()
//	reg.Register(tasks.Command(tasks.WithAllowedPrograms("gnuplot")))
//
//	eng, err := engine.New(cfg, engine.WithRegistry(reg), engine.WithLogger(logger))
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
//	rec, err := eng.CreateJob(ctx, "plot")
//	err = eng.Submit(ctx, rec.ID.String(), "command.run", "gnuplot", "plot.gp")
//
//	status, ok := eng.GetPublicStatus(ctx, rec.ID.String())
//	...
//	eng.FinalizeJob(ctx, rec.ID.String())
package engine
