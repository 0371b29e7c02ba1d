package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobrunner/job"
)

// Recover turns a panic below it into an error, so the executor records the
// job as failed with "task <name> panicked: <value>" instead of losing the
// worker goroutine. The stack goes to logger only.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *job.Invocation, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("recovered task panic",
				slog.String("job_id", inv.JobID.String()),
				slog.String("task", inv.Task),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("task %s panicked: %v", inv.Task, r)
		}()
		return next(ctx)
	}
}
