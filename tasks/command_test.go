package tasks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xraph/jobrunner/job"
)

func runTask(t *testing.T, ctx context.Context, def *job.Definition, dir string, argv ...any) (any, error) {
	t.Helper()
	args, err := job.EncodeArgs(argv...)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	if dir != "" {
		ctx = job.WithWorkDir(ctx, dir)
	}
	return def.Func(ctx, args)
}

// testCommand allows the programs these tests run.
func testCommand(opts ...CommandOption) *job.Definition {
	opts = append(opts, WithAllowedPrograms("/bin/sh", "/bin/sleep", "/bin/true", "/definitely/not/here"))
	return Command(opts...)
}

func TestCommand_Name(t *testing.T) {
	if got := Command().Name; got != CommandTaskName {
		t.Errorf("Name = %q, want %q", got, CommandTaskName)
	}
}

func TestCommand_RunsInWorkDir(t *testing.T) {
	dir := t.TempDir()
	out, err := runTask(t, context.Background(), testCommand(), dir,
		"/bin/sh", "-c", "echo hello > result.csv && mkdir -p plots && touch plots/a.png && echo done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := out.(*CommandResult)
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "done" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	want := []string{"plots/a.png", "result.csv"}
	if len(res.Outputs) != len(want) || res.Outputs[0] != want[0] || res.Outputs[1] != want[1] {
		t.Errorf("outputs = %v, want %v", res.Outputs, want)
	}
}

func TestCommand_FailureCarriesStderr(t *testing.T) {
	_, err := runTask(t, context.Background(), testCommand(), t.TempDir(),
		"/bin/sh", "-c", "echo progress; echo 'column gene_id missing' >&2; exit 3")
	if err == nil || err.Error() != "column gene_id missing" {
		t.Errorf("err = %v, want stderr message", err)
	}
}

func TestCommand_FailureFallsBackToStdout(t *testing.T) {
	_, err := runTask(t, context.Background(), testCommand(), t.TempDir(),
		"/bin/sh", "-c", "echo only stdout; exit 1")
	if err == nil || err.Error() != "only stdout" {
		t.Errorf("err = %v", err)
	}
}

func TestCommand_SilentFailure(t *testing.T) {
	_, err := runTask(t, context.Background(), testCommand(), t.TempDir(), "/bin/sh", "-c", "exit 2")
	if err == nil || !strings.Contains(err.Error(), "sh failed") {
		t.Errorf("err = %v", err)
	}
}

func TestCommand_Rejections(t *testing.T) {
	def := Command(WithAllowedPrograms("Rscript"))

	if _, err := runTask(t, context.Background(), def, t.TempDir()); err == nil {
		t.Error("expected error without a program")
	}
	if _, err := runTask(t, context.Background(), def, t.TempDir(), "/bin/rm", "-rf", "/"); err == nil ||
		!strings.Contains(err.Error(), "program not allowed") {
		t.Errorf("err = %v, want program not allowed", err)
	}
	if _, err := runTask(t, context.Background(), testCommand(), "", "/bin/true"); err == nil {
		t.Error("expected error without a work directory")
	}
	if _, err := runTask(t, context.Background(), testCommand(), t.TempDir(), "/definitely/not/here"); err == nil {
		t.Error("expected error for a missing program")
	}
	if _, err := runTask(t, context.Background(), testCommand(), t.TempDir(), 42); err == nil {
		t.Error("expected error for a non-string argument")
	}
}

func TestCommand_DeniesEverythingByDefault(t *testing.T) {
	for _, prog := range []string{"/bin/sh", "/bin/true", "Rscript"} {
		_, err := runTask(t, context.Background(), Command(), t.TempDir(), prog)
		if err == nil || !strings.Contains(err.Error(), "program not allowed") {
			t.Errorf("%s: err = %v, want program not allowed", prog, err)
		}
	}
}

func TestCommand_Env(t *testing.T) {
	out, err := runTask(t, context.Background(), testCommand(WithEnv("JOB_LABEL=deg")), t.TempDir(),
		"/bin/sh", "-c", "printf %s \"$JOB_LABEL\"")
	if err != nil {
		t.Fatal(err)
	}
	if got := out.(*CommandResult).Stdout; got != "deg" {
		t.Errorf("stdout = %q", got)
	}
}

func TestCommand_ContextCancelKills(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runTask(t, ctx, testCommand(), t.TempDir(), "/bin/sleep", "10")
	if err == nil {
		t.Fatal("expected error from a killed command")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("command was not killed on cancellation")
	}
}

func TestTail_KeepsLastBytes(t *testing.T) {
	tl := newTail(5)
	_, _ = tl.Write([]byte("abc"))
	_, _ = tl.Write([]byte("defg"))
	if tl.String() != "cdefg" {
		t.Errorf("tail = %q", tl.String())
	}
	_, _ = tl.Write([]byte("0123456789"))
	if tl.String() != "56789" {
		t.Errorf("tail = %q", tl.String())
	}
}
