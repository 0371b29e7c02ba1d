package middleware

import (
	"context"
	"fmt"

	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/queue"
)

// Limit returns middleware that holds the task until l admits it. The
// wait ends early only if ctx is cancelled, which fails the job.
func Limit(l *queue.Limiter) Middleware {
	return func(ctx context.Context, inv *job.Invocation, next Handler) error {
		release, err := l.Acquire(ctx, inv.Task)
		if err != nil {
			return fmt.Errorf("waiting for task limit: %w", err)
		}
		defer release()
		return next(ctx)
	}
}
