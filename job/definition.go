package job

import (
	"context"
	"fmt"
)

// TaskFunc is a type-erased task. It receives the positional arguments
// recorded at submit time and returns a JSON-serializable result, or nil
// for no result.
type TaskFunc func(ctx context.Context, args Args) (any, error)

// Definition binds a stable task name to its implementation. The name is
// what travels through a queue, so it must be identical in every process
// that shares a broker.
type Definition struct {
	// Name is the unique identifier for this task.
	Name string

	// Func is the function that runs the task.
	Func TaskFunc
}

// NewDefinition creates a task definition.
func NewDefinition(name string, fn TaskFunc) *Definition {
	return &Definition{Name: name, Func: fn}
}

// Typed adapts a function taking a single decoded argument of type A into a
// Definition. The first positional argument is JSON-decoded into A; a task
// submitted with no arguments receives the zero value.
func Typed[A, R any](name string, fn func(ctx context.Context, arg A) (R, error)) *Definition {
	return NewDefinition(name, func(ctx context.Context, args Args) (any, error) {
		var a A
		if args.Len() > 0 {
			if err := args.Decode(0, &a); err != nil {
				return nil, fmt.Errorf("task %q: %w", name, err)
			}
		}
		return fn(ctx, a)
	})
}
