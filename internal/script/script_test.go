package script

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bgunnarsson/tabled/internal/errors"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func shRunner(t *testing.T, timeout time.Duration) (*Runner, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	return New(Config{Dir: dir, Interpreter: "sh", Timeout: timeout}), dir
}

func TestRunCapturesOutput(t *testing.T) {
	r, dir := shRunner(t, 0)
	writeScript(t, dir, "hello.sh", "echo \"hello $1\"\necho oops >&2\n")

	res, err := r.Run(context.Background(), "hello.sh", "world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "hello world\n" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Error != "oops\n" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.ExitCode != 0 || res.RunID == "" || res.Script != "hello.sh" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunNonZeroExitIsAResult(t *testing.T) {
	r, dir := shRunner(t, 0)
	writeScript(t, dir, "fail.sh", "echo bad >&2\nexit 3\n")

	res, err := r.Run(context.Background(), "fail.sh")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 || res.Error != "bad\n" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunTimeout(t *testing.T) {
	r, dir := shRunner(t, 100*time.Millisecond)
	writeScript(t, dir, "slow.sh", "sleep 5\n")

	res, err := r.Run(context.Background(), "slow.sh")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut || !strings.Contains(res.Error, "timed out") {
		t.Errorf("result = %+v", res)
	}
}

func TestRunDirectFromRelativeDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	// Shares its name with a command on PATH; the local file must win.
	writeScript(t, dir, "ls", "#!/bin/sh\necho local\n")

	r := New(Config{Dir: "."})
	res, err := r.Run(context.Background(), "ls")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "local\n" || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunRejectsBadNames(t *testing.T) {
	r, dir := shRunner(t, 0)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want error
	}{
		{"", errors.ErrInvalidInput},
		{"../etc/passwd", errors.ErrInvalidInput},
		{"..", errors.ErrInvalidInput},
		{"a/b.py", errors.ErrInvalidInput},
		{"missing.py", errors.ErrNotFound},
		{"sub", errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.name)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunStartFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "x.py", "print(1)\n")
	r := New(Config{Dir: dir, Interpreter: filepath.Join(dir, "no-such-interpreter")})

	if _, err := r.Run(context.Background(), "x.py"); err == nil {
		t.Error("expected start error")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "b.py", "")
	writeScript(t, dir, "a.py", "")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := New(Config{Dir: dir}).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "a.py" || names[1] != "b.py" {
		t.Errorf("names = %v", names)
	}

	names, err = New(Config{Dir: filepath.Join(dir, "absent")}).List()
	if err != nil || len(names) != 0 {
		t.Errorf("missing dir = %v, %v", names, err)
	}
}
