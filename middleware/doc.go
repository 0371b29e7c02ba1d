// Package middleware provides composable middleware for task execution.
//
// A [Middleware] is a function that wraps a task call. Middleware are
// composed into a chain using [Chain] and applied before each task runs.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// tracing, then logging, then the task
//	chain := middleware.Chain(middleware.Tracing(), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover]: catches panics and converts them to errors
//   - [Logging]: logs task name, job id, duration, and outcome
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-task duration and outcome counters
//   - [Limit]: waits for a per-task rate token and concurrency slot
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *job.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting. A task's return value never passes through the chain;
// only its error does.
package middleware
