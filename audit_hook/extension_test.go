package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/jobrunner/audit_hook"
	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestRecord() *job.Record {
	return job.NewRecord(id.NewJobID(), "transcode", "/tmp/jobs/x", time.Now())
}

func newTestInvocation() *job.Invocation {
	args, _ := job.EncodeArgs("in.mp4")
	return &job.Invocation{
		JobID:      id.NewJobID(),
		Task:       "video.transcode",
		Args:       args,
		EnqueuedAt: time.Now(),
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	e := ah.New(&mockRecorder{})
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestExtension_JobCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRecord()

	if err := e.OnJobCreated(context.Background(), r); err != nil {
		t.Fatalf("OnJobCreated: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionJobCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionJobCreated, evt.Action)
	}
	if evt.Resource != ah.ResourceJob {
		t.Errorf("Resource: want %q, got %q", ah.ResourceJob, evt.Resource)
	}
	if evt.Category != ah.CategoryJob {
		t.Errorf("Category: want %q, got %q", ah.CategoryJob, evt.Category)
	}
	if evt.ResourceID != r.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", r.ID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["kind"] != "transcode" {
		t.Errorf("Metadata[kind]: want %q, got %v", "transcode", evt.Metadata["kind"])
	}
}

func TestExtension_JobSubmitted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	inv := newTestInvocation()

	if err := e.OnJobSubmitted(context.Background(), inv); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobSubmitted {
		t.Errorf("Action: want %q, got %q", ah.ActionJobSubmitted, evt.Action)
	}
	if evt.Metadata["task"] != "video.transcode" {
		t.Errorf("Metadata[task]: want %q, got %v", "video.transcode", evt.Metadata["task"])
	}
	if evt.Metadata["args"] != 1 {
		t.Errorf("Metadata[args]: want 1, got %v", evt.Metadata["args"])
	}
}

func TestExtension_JobFinished(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	elapsed := 150 * time.Millisecond

	if err := e.OnJobFinished(context.Background(), newTestInvocation(), elapsed); err != nil {
		t.Fatalf("OnJobFinished: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobFinished {
		t.Errorf("Action: want %q, got %q", ah.ActionJobFinished, evt.Action)
	}
	if evt.Metadata["elapsed_ms"] != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_JobFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	jobErr := errors.New("connection timeout")

	if err := e.OnJobFailed(context.Background(), newTestInvocation(), jobErr); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionJobFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "connection timeout" {
		t.Errorf("Reason: want %q, got %q", "connection timeout", evt.Reason)
	}
	if evt.Metadata["error"] != "connection timeout" {
		t.Errorf("Metadata[error]: want %q, got %v", "connection timeout", evt.Metadata["error"])
	}
}

func TestExtension_JobFinalized(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	jobID := id.NewJobID()

	if err := e.OnJobFinalized(context.Background(), jobID, ext.ReasonExpired); err != nil {
		t.Fatalf("OnJobFinalized: %v", err)
	}

	evt := rec.last()
	if evt.ResourceID != jobID.String() {
		t.Errorf("ResourceID: want %q, got %q", jobID.String(), evt.ResourceID)
	}
	if evt.Metadata["reason"] != ext.ReasonExpired {
		t.Errorf("Metadata[reason]: want %q, got %v", ext.ReasonExpired, evt.Metadata["reason"])
	}
}

func TestExtension_SweepCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnSweepCompleted(context.Background(), 3, 2*time.Second); err != nil {
		t.Fatalf("OnSweepCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Resource != ah.ResourceSweep || evt.Category != ah.CategorySweep {
		t.Errorf("unexpected resource/category %q/%q", evt.Resource, evt.Category)
	}
	if evt.Metadata["evicted"] != 3 {
		t.Errorf("Metadata[evicted]: want 3, got %v", evt.Metadata["evicted"])
	}
	if evt.Metadata["elapsed_ms"] != int64(2000) {
		t.Errorf("Metadata[elapsed_ms]: want 2000, got %v", evt.Metadata["elapsed_ms"])
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobFinished, ah.ActionJobFailed))

	ctx := context.Background()
	inv := newTestInvocation()

	// Submitted is not enabled.
	if err := e.OnJobSubmitted(ctx, inv); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (submitted disabled), got %d", rec.count())
	}

	if err := e.OnJobFinished(ctx, inv, 50*time.Millisecond); err != nil {
		t.Fatalf("OnJobFinished: %v", err)
	}
	if err := e.OnJobFailed(ctx, inv, errors.New("boom")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── Recorder tests ───────────────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, evt *ah.AuditEvent) error {
		captured = evt
		return nil
	})

	e := ah.New(fn)
	if err := e.OnJobCreated(context.Background(), newTestRecord()); err != nil {
		t.Fatalf("OnJobCreated: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != ah.ActionJobCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionJobCreated, captured.Action)
	}
}

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	var buf bytes.Buffer
	e := ah.New(failingRecorder, ah.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if err := e.OnJobCreated(context.Background(), newTestRecord()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(buf.String(), "audit backend down") {
		t.Errorf("expected recorder error to be logged, got %q", buf.String())
	}
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := ah.New(ah.NewLogRecorder(logger))

	if err := e.OnJobFailed(context.Background(), newTestInvocation(), errors.New("disk full")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"action":"job.failed"`, `"level":"WARN"`, `"error":"disk full"`, `"task":"video.transcode"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(ah.New(rec))

	ctx := context.Background()
	r := newTestRecord()
	inv := newTestInvocation()

	reg.EmitJobCreated(ctx, r)
	reg.EmitJobSubmitted(ctx, inv)
	reg.EmitJobStarted(ctx, inv)
	reg.EmitJobFinished(ctx, inv, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, inv, errors.New("fail"))
	reg.EmitJobFinalized(ctx, r.ID, ext.ReasonFinalized)
	reg.EmitSweepCompleted(ctx, 0, time.Millisecond)

	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}
	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}
