package middleware

import (
	"context"

	"github.com/xraph/jobrunner/job"
)

// Handler runs the task body for one invocation. Its error becomes the
// job's failure message.
type Handler func(ctx context.Context) error

// Middleware sees every invocation before its task runs. Returning without
// calling next skips the task and fails the job with the returned error.
type Middleware func(ctx context.Context, inv *job.Invocation, next Handler) error

// Chain folds mws into one Middleware, first element outermost. The engine
// builds its chain as
//
//	Chain(Tracing(), Metrics(), Logging(l), Limit(lim), custom...)
//
// and the executor wraps the result in Recover, so a span is open and the
// duration histogram is running while a task waits on its rate limit, and
// a panic anywhere below is reported as a failed job.
func Chain(mws ...Middleware) Middleware {
	if len(mws) == 1 {
		return mws[0]
	}
	return func(ctx context.Context, inv *job.Invocation, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			m, inner := mws[i], h
			h = func(ctx context.Context) error { return m(ctx, inv, inner) }
		}
		return h(ctx)
	}
}
