package job

import "context"

type ctxKey int

const (
	workDirKey ctxKey = iota
	jobIDKey
)

// WithWorkDir returns a context carrying the job's scratch directory.
func WithWorkDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, workDirKey, dir)
}

// WorkDirFrom returns the scratch directory of the job whose task is
// running under ctx.
func WorkDirFrom(ctx context.Context) (string, bool) {
	dir, ok := ctx.Value(workDirKey).(string)
	return dir, ok && dir != ""
}

// WithJobID returns a context carrying the id of the running job.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFrom returns the id of the job whose task is running under ctx.
func JobIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(jobIDKey).(string)
	return v, ok
}
