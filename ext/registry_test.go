package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	mu    sync.Mutex
	calls []string
}

func (e *allHooksExt) record(name string) {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.mu.Unlock()
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobCreated(_ context.Context, _ *job.Record) error {
	e.record("OnJobCreated")
	return nil
}

func (e *allHooksExt) OnJobSubmitted(_ context.Context, _ *job.Invocation) error {
	e.record("OnJobSubmitted")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Invocation) error {
	e.record("OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobFinished(_ context.Context, _ *job.Invocation, _ time.Duration) error {
	e.record("OnJobFinished")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Invocation, _ error) error {
	e.record("OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobFinalized(_ context.Context, _ id.JobID, reason string) error {
	e.record("OnJobFinalized:" + reason)
	return nil
}

func (e *allHooksExt) OnSweepCompleted(_ context.Context, _ int, _ time.Duration) error {
	e.record("OnSweepCompleted")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.record("OnShutdown")
	return nil
}

// startOnlyExt only implements one hook.
type startOnlyExt struct {
	calls []string
}

func (e *startOnlyExt) Name() string { return "start-only" }

func (e *startOnlyExt) OnJobStarted(_ context.Context, _ *job.Invocation) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobStarted(_ context.Context, _ *job.Invocation) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	so := &startOnlyExt{}
	r.Register(all)
	r.Register(so)

	ctx := context.Background()
	inv := &job.Invocation{JobID: id.NewJobID(), Task: "t"}

	r.EmitJobStarted(ctx, inv)
	if len(all.calls) != 1 || len(so.calls) != 1 {
		t.Fatalf("both should observe OnJobStarted: all=%v so=%v", all.calls, so.calls)
	}

	r.EmitJobFinished(ctx, inv, time.Second)
	if len(all.calls) != 2 || all.calls[1] != "OnJobFinished" {
		t.Fatalf("all: expected OnJobFinished as 2nd, got %v", all.calls)
	}
	if len(so.calls) != 1 {
		t.Fatalf("start-only: should still have 1 call, got %v", so.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	jobID := id.NewJobID()
	inv := &job.Invocation{JobID: jobID, Task: "t"}

	r.EmitJobCreated(ctx, job.NewRecord(jobID, "k", "/tmp/x", time.Now()))
	r.EmitJobSubmitted(ctx, inv)
	r.EmitJobStarted(ctx, inv)
	r.EmitJobFinished(ctx, inv, time.Second)
	r.EmitJobFailed(ctx, inv, errors.New("fail"))
	r.EmitJobFinalized(ctx, jobID, ext.ReasonExpired)
	r.EmitSweepCompleted(ctx, 1, time.Millisecond)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobCreated", "OnJobSubmitted", "OnJobStarted", "OnJobFinished",
		"OnJobFailed", "OnJobFinalized:expired", "OnSweepCompleted", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitJobStarted(ctx, &job.Invocation{})
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("all: expected 2 calls despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()

	// None of these should panic.
	r.EmitJobCreated(ctx, &job.Record{})
	r.EmitJobSubmitted(ctx, &job.Invocation{})
	r.EmitJobStarted(ctx, &job.Invocation{})
	r.EmitJobFinished(ctx, &job.Invocation{}, time.Second)
	r.EmitJobFailed(ctx, &job.Invocation{}, errors.New("x"))
	r.EmitJobFinalized(ctx, id.NewJobID(), ext.ReasonFinalized)
	r.EmitSweepCompleted(ctx, 0, 0)
	r.EmitShutdown(ctx)
}

func TestRegistry_ConcurrentEmit(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.EmitJobStarted(context.Background(), &job.Invocation{})
		}()
	}
	wg.Wait()

	if len(all.calls) != 16 {
		t.Fatalf("expected 16 calls, got %d", len(all.calls))
	}
}
