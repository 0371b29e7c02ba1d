package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/observability"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e, err := observability.NewMetricsExtension(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsExtension: %v", err)
	}
	return e, reader
}

func newTestInvocation() *job.Invocation {
	return &job.Invocation{JobID: id.NewJobID(), Task: "command.run"}
}

// sumOf returns the summed value of an int64 sum metric across data points.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobCreated(t *testing.T) {
	e, reader := newTestExtension(t)
	r := job.NewRecord(id.NewJobID(), "plot", "/tmp/x", time.Now())
	if err := e.OnJobCreated(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sumOf(t, reader, "jobrunner.jobs.created"); got != 1 {
		t.Errorf("jobs.created: want 1, got %d", got)
	}
}

func TestMetricsExtension_ActiveTracksStartAndOutcome(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	a, b := newTestInvocation(), newTestInvocation()
	_ = e.OnJobStarted(ctx, a)
	_ = e.OnJobStarted(ctx, b)
	if got := sumOf(t, reader, "jobrunner.jobs.active"); got != 2 {
		t.Fatalf("jobs.active after two starts: want 2, got %d", got)
	}

	_ = e.OnJobFinished(ctx, a, 100*time.Millisecond)
	_ = e.OnJobFailed(ctx, b, errors.New("boom"))
	if got := sumOf(t, reader, "jobrunner.jobs.active"); got != 0 {
		t.Errorf("jobs.active after outcomes: want 0, got %d", got)
	}
	if got := sumOf(t, reader, "jobrunner.jobs.finished"); got != 1 {
		t.Errorf("jobs.finished: want 1, got %d", got)
	}
	if got := sumOf(t, reader, "jobrunner.jobs.failed"); got != 1 {
		t.Errorf("jobs.failed: want 1, got %d", got)
	}
}

func TestMetricsExtension_FinalizedAndSweeps(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	_ = e.OnJobFinalized(ctx, id.NewJobID(), ext.ReasonFinalized)
	_ = e.OnJobFinalized(ctx, id.NewJobID(), ext.ReasonExpired)
	_ = e.OnSweepCompleted(ctx, 1, time.Millisecond)
	_ = e.OnSweepCompleted(ctx, 0, time.Millisecond)

	if got := sumOf(t, reader, "jobrunner.jobs.finalized"); got != 2 {
		t.Errorf("jobs.finalized: want 2, got %d", got)
	}
	if got := sumOf(t, reader, "jobrunner.sweeps"); got != 2 {
		t.Errorf("sweeps: want 2, got %d", got)
	}
	if got := sumOf(t, reader, "jobrunner.sweep.evicted"); got != 1 {
		t.Errorf("sweep.evicted: want 1, got %d", got)
	}
}

func TestNewPrometheus_ServesMetrics(t *testing.T) {
	mp, handler, err := observability.NewPrometheus()
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	e, err := observability.NewMetricsExtension(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsExtension: %v", err)
	}
	_ = e.OnJobSubmitted(context.Background(), newTestInvocation())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "jobrunner_jobs_submitted") {
		t.Errorf("metrics output missing jobrunner_jobs_submitted:\n%s", body)
	}

	// A second provider gets its own registry.
	mp2, _, err := observability.NewPrometheus()
	if err != nil {
		t.Fatalf("second NewPrometheus: %v", err)
	}
	_ = mp2.Shutdown(context.Background())
}
