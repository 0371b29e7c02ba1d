package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobrunner/job"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *job.Invocation, next Handler) error {
		attrs := []any{
			slog.String("task", inv.Task),
			slog.String("job_id", inv.JobID.String()),
		}
		if !inv.EnqueuedAt.IsZero() {
			attrs = append(attrs, slog.Duration("waited", time.Since(inv.EnqueuedAt)))
		}
		logger.Info("task started", attrs...)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("task", inv.Task),
				slog.String("job_id", inv.JobID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("task", inv.Task),
				slog.String("job_id", inv.JobID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
