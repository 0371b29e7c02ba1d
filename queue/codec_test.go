package queue_test

import (
	"testing"
	"time"

	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/queue"
)

func TestCodecs_PreserveInvocation(t *testing.T) {
	args, err := job.EncodeArgs("Rscript", []string{"--vanilla"}, map[string]int{"n": 2})
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	inv := &job.Invocation{
		JobID:      id.NewJobID(),
		Task:       "command.run",
		Args:       args,
		EnqueuedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	for _, name := range []string{queue.CodecNameJSON, queue.CodecNameMsgpack} {
		t.Run(name, func(t *testing.T) {
			c := queue.GetCodec(name)
			if c.Name() != name {
				t.Fatalf("GetCodec(%q).Name() = %q", name, c.Name())
			}
			data, err := c.Encode(inv)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.JobID != inv.JobID || got.Task != inv.Task {
				t.Errorf("got %q/%q", got.JobID, got.Task)
			}
			if !got.EnqueuedAt.Equal(inv.EnqueuedAt) {
				t.Errorf("EnqueuedAt = %v", got.EnqueuedAt)
			}
			prog, err := got.Args.String(0)
			if err != nil || prog != "Rscript" {
				t.Errorf("Args[0] = %q, %v", prog, err)
			}
			var opts map[string]int
			if err := got.Args.Decode(2, &opts); err != nil || opts["n"] != 2 {
				t.Errorf("Args[2] = %v, %v", opts, err)
			}
		})
	}
}

func TestGetCodec_DefaultsToJSON(t *testing.T) {
	if got := queue.GetCodec("").Name(); got != queue.CodecNameJSON {
		t.Fatalf("default codec = %q", got)
	}
}

func TestCodecs_RejectGarbage(t *testing.T) {
	for _, name := range []string{queue.CodecNameJSON, queue.CodecNameMsgpack} {
		if _, err := queue.GetCodec(name).Decode([]byte{0xc1, 0x00}); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}
