// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/store"
)

// Factory returns a fresh, empty store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run exercises the shared store contract against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"GetReturnsCopy", testGetReturnsCopy},
		{"Lifecycle", testLifecycle},
		{"Failed", testFailed},
		{"RejectsIllegalTransition", testRejectsIllegalTransition},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteReportsExistence", testDeleteReportsExistence},
		{"ListJobIDs", testListJobIDs},
		{"ConcurrentClaim", testConcurrentClaim},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, f(t))
		})
	}
}

func newRecord(kind string) *job.Record {
	return job.NewRecord(id.NewJobID(), kind, "/tmp/job_"+kind+"_test", time.Now().UTC().Truncate(time.Millisecond))
}

func mustCreate(t *testing.T, s store.Store, r *job.Record) {
	t.Helper()
	if err := s.CreateJob(context.Background(), r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func mustGet(t *testing.T, s store.Store, jobID id.JobID) *job.Record {
	t.Helper()
	r, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return r
}

func testCreateAndGet(t *testing.T, s store.Store) {
	r := newRecord("plot")
	mustCreate(t, s, r)

	got := mustGet(t, s, r.ID)
	if got.ID != r.ID {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
	if got.Kind != "plot" || got.WorkDir != r.WorkDir {
		t.Errorf("Kind/WorkDir = %q/%q", got.Kind, got.WorkDir)
	}
	if got.Status != job.StatusQueued {
		t.Errorf("Status = %q, want queued", got.Status)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
	if got.Error != "" || got.Result != nil {
		t.Errorf("fresh record has error %q result %s", got.Error, got.Result)
	}
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	r := newRecord("dup")
	mustCreate(t, s, r)

	err := s.CreateJob(context.Background(), r)
	if !errors.Is(err, jobrunner.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, jobrunner.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func testGetReturnsCopy(t *testing.T, s store.Store) {
	r := newRecord("copy")
	mustCreate(t, s, r)
	r.Kind = "mutated"

	got := mustGet(t, s, r.ID)
	got.Status = job.StatusFailed
	if again := mustGet(t, s, r.ID); again.Status != job.StatusQueued || again.Kind != "copy" {
		t.Errorf("store state changed through a returned value: %+v", again)
	}
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRecord("life")
	mustCreate(t, s, r)

	start := r.CreatedAt.Add(time.Second)
	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusRunning, At: start}); err != nil {
		t.Fatalf("running: %v", err)
	}
	if got := mustGet(t, s, r.ID); got.Status != job.StatusRunning || !got.UpdatedAt.Equal(start) {
		t.Errorf("after running: status %q updated %v", got.Status, got.UpdatedAt)
	}

	done := start.Add(time.Second)
	result := json.RawMessage(`{"rows":3}`)
	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusFinished, Result: result, At: done}); err != nil {
		t.Fatalf("finished: %v", err)
	}
	got := mustGet(t, s, r.ID)
	if got.Status != job.StatusFinished {
		t.Errorf("Status = %q, want finished", got.Status)
	}
	var decoded map[string]int
	if err := json.Unmarshal(got.Result, &decoded); err != nil || decoded["rows"] != 3 {
		t.Errorf("Result = %s (%v)", got.Result, err)
	}
	if got.Error != "" {
		t.Errorf("finished record has error %q", got.Error)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt before CreatedAt")
	}
}

func testFailed(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRecord("fail")
	mustCreate(t, s, r)

	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusRunning, At: time.Now()}); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusFailed, Error: "exit status 1", At: time.Now()}); err != nil {
		t.Fatalf("failed: %v", err)
	}
	got := mustGet(t, s, r.ID)
	if got.Status != job.StatusFailed || got.Error != "exit status 1" {
		t.Errorf("got status %q error %q", got.Status, got.Error)
	}
	if got.Result != nil {
		t.Errorf("failed record has result %s", got.Result)
	}
}

func testRejectsIllegalTransition(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRecord("illegal")
	mustCreate(t, s, r)

	err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusFinished, At: time.Now()})
	if !errors.Is(err, jobrunner.ErrInvalidState) {
		t.Fatalf("queued -> finished: expected ErrInvalidState, got %v", err)
	}

	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusRunning, At: time.Now()}); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := s.UpdateJob(ctx, r.ID, job.Update{Status: job.StatusRunning, At: time.Now()}); !errors.Is(err, jobrunner.ErrInvalidState) {
		t.Fatalf("running -> running: expected ErrInvalidState, got %v", err)
	}
	if got := mustGet(t, s, r.ID); got.Status != job.StatusRunning {
		t.Errorf("rejected update changed status to %q", got.Status)
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	err := s.UpdateJob(context.Background(), id.NewJobID(), job.Update{Status: job.StatusRunning, At: time.Now()})
	if !errors.Is(err, jobrunner.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func testDeleteReportsExistence(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRecord("del")
	mustCreate(t, s, r)

	existed, err := s.DeleteJob(ctx, r.ID)
	if err != nil || !existed {
		t.Fatalf("first delete = %v, %v; want true, nil", existed, err)
	}
	existed, err = s.DeleteJob(ctx, r.ID)
	if err != nil || existed {
		t.Fatalf("second delete = %v, %v; want false, nil", existed, err)
	}
	if _, err := s.GetJob(ctx, r.ID); !errors.Is(err, jobrunner.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound after delete, got %v", err)
	}
}

func testListJobIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := map[id.JobID]bool{}
	for range 3 {
		r := newRecord("list")
		mustCreate(t, s, r)
		want[r.ID] = true
	}
	gone := newRecord("gone")
	mustCreate(t, s, gone)
	if _, err := s.DeleteJob(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	ids, err := s.ListJobIDs(ctx)
	if err != nil {
		t.Fatalf("ListJobIDs: %v", err)
	}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for _, jobID := range ids {
		if !want[jobID] {
			t.Errorf("unexpected id %q", jobID)
		}
	}
}

func testConcurrentClaim(t *testing.T, s store.Store) {
	r := newRecord("race")
	mustCreate(t, s, r)

	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateJob(context.Background(), r.ID, job.Update{Status: job.StatusRunning, At: time.Now()})
			if err == nil {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := claimed.Load(); n != 1 {
		t.Fatalf("expected exactly one claim, got %d", n)
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
