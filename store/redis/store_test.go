package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/store"
	redisstore "github.com/xraph/jobrunner/store/redis"
	"github.com/xraph/jobrunner/store/storetest"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, client := newClient(t)
		return redisstore.New(client)
	})
}

func TestKeyLayout(t *testing.T) {
	mr, client := newClient(t)
	s := redisstore.New(client, redisstore.WithKeyPrefix("test:"))
	ctx := context.Background()

	r := job.NewRecord(id.NewJobID(), "plot", "/tmp/job_plot_x", time.Now())
	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	key := "test:job:" + r.ID.String()
	if !mr.Exists(key) {
		t.Fatalf("expected hash at %q", key)
	}
	if got := mr.HGet(key, "status"); got != "queued" {
		t.Errorf("status field = %q, want queued", got)
	}
	if got := mr.HGet(key, "work_dir"); got != "/tmp/job_plot_x" {
		t.Errorf("work_dir field = %q", got)
	}
	members, err := mr.Members("test:jobs")
	if err != nil || len(members) != 1 || members[0] != r.ID.String() {
		t.Errorf("index = %v, %v", members, err)
	}

	if _, err := s.DeleteJob(ctx, r.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if mr.Exists(key) {
		t.Error("hash survived delete")
	}
}

func TestListJobIDs_DropsMalformedEntries(t *testing.T) {
	mr, client := newClient(t)
	s := redisstore.New(client)

	if _, err := mr.SetAdd(redisstore.DefaultKeyPrefix+"jobs", "not-an-id"); err != nil {
		t.Fatalf("SetAdd: %v", err)
	}
	ids, err := s.ListJobIDs(context.Background())
	if err != nil {
		t.Fatalf("ListJobIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
	if ok, _ := mr.IsMember(redisstore.DefaultKeyPrefix+"jobs", "not-an-id"); ok {
		t.Error("malformed entry left in index")
	}
}

func TestPing_Unreachable(t *testing.T) {
	mr, client := newClient(t)
	s := redisstore.New(client)
	mr.Close()

	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after server shutdown")
	}
}
