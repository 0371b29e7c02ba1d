package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// Codec defines the serialization contract for broker messages.
type Codec interface {
	// Encode serializes an invocation to bytes.
	Encode(inv *job.Invocation) ([]byte, error)

	// Decode deserializes bytes into an invocation.
	Decode(data []byte) (*job.Invocation, error)

	// Name returns the codec identifier.
	Name() string
}

// Codec names.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec encodes invocations as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Encode(inv *job.Invocation) ([]byte, error) {
	return json.Marshal(inv)
}

func (c *JSONCodec) Decode(data []byte) (*job.Invocation, error) {
	var inv job.Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes invocations as MessagePack. Arguments stay JSON
// inside the envelope so tasks decode them the same way under either codec.
type MsgpackCodec struct{}

type msgpackInvocation struct {
	JobID      string    `msgpack:"job_id"`
	Task       string    `msgpack:"task"`
	Args       [][]byte  `msgpack:"args"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
}

func (c *MsgpackCodec) Encode(inv *job.Invocation) ([]byte, error) {
	wire := msgpackInvocation{
		JobID:      inv.JobID.String(),
		Task:       inv.Task,
		Args:       make([][]byte, len(inv.Args)),
		EnqueuedAt: inv.EnqueuedAt,
	}
	for i, a := range inv.Args {
		wire.Args[i] = a
	}
	return msgpack.Marshal(&wire)
}

func (c *MsgpackCodec) Decode(data []byte) (*job.Invocation, error) {
	var wire msgpackInvocation
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	jobID, err := id.Parse(wire.JobID)
	if err != nil {
		return nil, fmt.Errorf("decode job id: %w", err)
	}
	inv := &job.Invocation{
		JobID:      jobID,
		Task:       wire.Task,
		Args:       make(job.Args, len(wire.Args)),
		EnqueuedAt: wire.EnqueuedAt,
	}
	for i, a := range wire.Args {
		inv.Args[i] = a
	}
	return inv, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
