package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	e := New(0)
	res := e.Run(context.Background(), "echo hello", t.TempDir())
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.ExitCode, res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.TimedOut {
		t.Error("fast command must not time out")
	}
}

func TestRunCapturesStderrAndExitCode(t *testing.T) {
	e := New(0)
	res := e.Run(context.Background(), "echo oops >&2; exit 3", t.TempDir())
	if res.ExitCode != 3 {
		t.Errorf("exit = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	e := New(0)
	res := e.Run(context.Background(), "pwd", dir)
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d", res.ExitCode)
	}
	// macOS tempdirs resolve through symlinks; match on suffix.
	if !strings.Contains(strings.TrimSpace(res.Stdout), dir[strings.LastIndex(dir, "/"):]) {
		t.Errorf("pwd = %q, want dir %q", res.Stdout, dir)
	}
}

func TestRunTimeout(t *testing.T) {
	e := New(100 * time.Millisecond)
	res := e.Run(context.Background(), "sleep 5", t.TempDir())
	if !res.TimedOut {
		t.Fatal("expected timeout")
	}
	if res.ExitCode == 0 {
		t.Error("timed out command must report failure")
	}
}

func TestRunManyStopsAtFirstFailure(t *testing.T) {
	e := New(0)
	results := e.RunMany(context.Background(), []string{"true", "false", "echo never"}, t.TempDir())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ExitCode != 0 || results[1].ExitCode == 0 {
		t.Errorf("results = %+v", results)
	}
}
