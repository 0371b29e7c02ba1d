package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/jobrunner/id"
)

// Invocation names a task and its arguments for one job. It is the unit
// placed on a queue and must survive serialization, which is why the task
// is referenced by registry name rather than by function value.
type Invocation struct {
	JobID      id.JobID  `json:"job_id"`
	Task       string    `json:"task"`
	Args       Args      `json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Args are the positional arguments of a task, each held as raw JSON.
type Args []json.RawMessage

// EncodeArgs JSON-encodes each positional value.
func EncodeArgs(values ...any) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		args[i] = b
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("argument %d out of range (have %d)", i, len(a))
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("decode argument %d: %w", i, err)
	}
	return nil
}

// String decodes argument i as a string.
func (a Args) String(i int) (string, error) {
	var s string
	err := a.Decode(i, &s)
	return s, err
}

// Strings decodes every argument from index i onward as a string.
func (a Args) Strings(from int) ([]string, error) {
	if from >= len(a) {
		return nil, nil
	}
	out := make([]string, 0, len(a)-from)
	for i := from; i < len(a); i++ {
		s, err := a.String(i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
