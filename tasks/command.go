// Package tasks holds task definitions that ship with jobrunner.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/xraph/jobrunner/job"
)

// CommandTaskName is the registry name of the external-command task.
const CommandTaskName = "command.run"

const defaultTailBytes = 4096

// CommandResult is the result recorded for a successful command.
type CommandResult struct {
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	Outputs  []string `json:"outputs"`
	Duration string   `json:"duration"`
}

type commandOptions struct {
	allowed   []string
	env       []string
	tailBytes int
}

// CommandOption configures the command task.
type CommandOption func(*commandOptions)

// WithAllowedPrograms restricts the programs the task may run. Names are
// compared against the first argument exactly as submitted. Without any
// allowed program every invocation is rejected.
func WithAllowedPrograms(programs ...string) CommandOption {
	return func(o *commandOptions) { o.allowed = append(o.allowed, programs...) }
}

// WithEnv adds KEY=VALUE entries to the command's environment.
func WithEnv(env ...string) CommandOption {
	return func(o *commandOptions) { o.env = append(o.env, env...) }
}

// WithOutputTail sets how many trailing bytes of stdout and stderr are kept.
func WithOutputTail(n int) CommandOption {
	return func(o *commandOptions) {
		if n > 0 {
			o.tailBytes = n
		}
	}
}

// Command returns the "command.run" task. Its arguments are the program
// followed by its arguments, all strings. The program runs with the job's
// work directory as its working directory; the result lists the files it
// left there. A non-zero exit fails the job with the stderr tail, or the
// stdout tail when stderr is empty.
func Command(opts ...CommandOption) *job.Definition {
	o := commandOptions{tailBytes: defaultTailBytes}
	for _, opt := range opts {
		opt(&o)
	}

	return job.NewDefinition(CommandTaskName, func(ctx context.Context, args job.Args) (any, error) {
		argv, err := args.Strings(0)
		if err != nil {
			return nil, err
		}
		if len(argv) == 0 {
			return nil, errors.New("no program given")
		}
		if !slices.Contains(o.allowed, argv[0]) {
			return nil, fmt.Errorf("program not allowed: %s", argv[0])
		}

		dir, ok := job.WorkDirFrom(ctx)
		if !ok {
			return nil, errors.New("no work directory for job")
		}

		return runCommand(ctx, dir, argv, o)
	})
}

func runCommand(ctx context.Context, dir string, argv []string, o commandOptions) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), o.env...)
	cmd.WaitDelay = 5 * time.Second

	stdout := newTail(o.tailBytes)
	stderr := newTail(o.tailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", argv[0], err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.New(msg)
		}
		if msg := strings.TrimSpace(stdout.String()); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("%s failed: %w", filepath.Base(argv[0]), err)
	}

	outputs, err := listOutputs(dir)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Outputs:  outputs,
		Duration: elapsed.Round(time.Millisecond).String(),
	}, nil
}

// listOutputs returns the regular files below dir, relative and sorted.
func listOutputs(dir string) ([]string, error) {
	outputs := []string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}
			outputs = append(outputs, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	sort.Strings(outputs)
	return outputs, nil
}

// tail keeps the last max bytes written to it.
type tail struct {
	max int
	buf []byte
}

func newTail(maxBytes int) *tail { return &tail{max: maxBytes} }

func (t *tail) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return n, nil
}

func (t *tail) String() string { return string(t.buf) }
