package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/queue"
	redisqueue "github.com/xraph/jobrunner/queue/redis"
)

func newQueue(t *testing.T, opts ...redisqueue.Option) (*miniredis.Miniredis, *redisqueue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisqueue.New(client, opts...)
}

func TestQueue_FIFO(t *testing.T) {
	for _, codec := range []string{queue.CodecNameJSON, queue.CodecNameMsgpack} {
		t.Run(codec, func(t *testing.T) {
			_, q := newQueue(t, redisqueue.WithCodec(queue.GetCodec(codec)))
			ctx := context.Background()

			var want []id.JobID
			for i := range 3 {
				args, _ := job.EncodeArgs(i)
				inv := &job.Invocation{JobID: id.NewJobID(), Task: "t", Args: args, EnqueuedAt: time.Now().UTC()}
				want = append(want, inv.JobID)
				if err := q.Push(ctx, inv); err != nil {
					t.Fatalf("Push: %v", err)
				}
			}
			if n, err := q.Len(ctx); err != nil || n != 3 {
				t.Fatalf("Len = %d, %v", n, err)
			}

			for i, w := range want {
				got, err := q.Pop(ctx)
				if err != nil {
					t.Fatalf("Pop %d: %v", i, err)
				}
				if got.JobID != w {
					t.Fatalf("Pop %d returned %q, want %q", i, got.JobID, w)
				}
				var n int
				if err := got.Args.Decode(0, &n); err != nil || n != i {
					t.Errorf("Args[0] = %d, %v", n, err)
				}
			}
		})
	}
}

func TestQueue_KeyPrefix(t *testing.T) {
	mr, q := newQueue(t, redisqueue.WithKeyPrefix("svc:"))
	if q.Key() != "svc:queue" {
		t.Fatalf("Key = %q", q.Key())
	}
	if err := q.Push(context.Background(), &job.Invocation{JobID: id.NewJobID(), Task: "t"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	list, err := mr.List("svc:queue")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}
}

func TestQueue_SkipsUndecodableMessages(t *testing.T) {
	mr, q := newQueue(t)
	mr.Lpush(q.Key(), "{not json")

	inv := &job.Invocation{JobID: id.NewJobID(), Task: "good"}
	if err := q.Push(context.Background(), inv); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got.JobID != inv.JobID {
		t.Fatalf("got %q, want %q", got.JobID, inv.JobID)
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	_, q := newQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestQueue_Close(t *testing.T) {
	_, q := newQueue(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, jobrunner.ErrQueueClosed) {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Close")
	}

	if err := q.Push(context.Background(), &job.Invocation{JobID: id.NewJobID()}); !errors.Is(err, jobrunner.ErrQueueClosed) {
		t.Fatalf("Push after Close: %v", err)
	}
}
