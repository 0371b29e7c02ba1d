package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/store"
	"github.com/xraph/jobrunner/store/sqlite"
	"github.com/xraph/jobrunner/store/storetest"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Store {
		return open(t, filepath.Join(t.TempDir(), "jobs.db"))
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	first, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := job.NewRecord(id.NewJobID(), "report", "/tmp/job_report_1", time.Now())
	if err := first.CreateJob(ctx, r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := open(t, path)
	got, err := second.GetJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetJob after reopen: %v", err)
	}
	if got.Kind != "report" || got.Status != job.StatusQueued {
		t.Errorf("got %+v", got)
	}
}
