// Package script runs helper scripts from a fixed directory and captures
// their output.
package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
)

const (
	DefaultDir         = "scripts"
	DefaultInterpreter = "python3"
	DefaultTimeout     = 60 * time.Second
)

// Config locates scripts and how to run them.
type Config struct {
	Dir string
	// Interpreter runs the script file. Empty runs the file itself.
	Interpreter string
	// Timeout bounds one run. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is one finished run. A non-zero exit is reported here, not as
// an error.
type Result struct {
	RunID    string        `json:"run_id"`
	Script   string        `json:"script"`
	Output   string        `json:"output"`
	Error    string        `json:"error"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Runner executes scripts from Config.Dir.
type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{cfg: cfg}
}

// Dir is the script directory.
func (r *Runner) Dir() string { return r.cfg.Dir }

// resolve maps a script name to its path inside Dir.
func (r *Runner) resolve(op, name string) (string, error) {
	if name == "" {
		return "", errors.NewInvalid(op, "script name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, "..") {
		return "", errors.NewInvalid(op, fmt.Sprintf("invalid script name %q", name))
	}

	// Absolute, so exec never searches PATH for a bare name.
	path, err := filepath.Abs(filepath.Join(r.cfg.Dir, name))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: script %q: %w", op, name, errors.ErrNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: script %q: %w", op, name, errors.ErrNotFound)
	}
	return path, nil
}

// Run executes the named script with args and waits for it. The error is
// non-nil only when the script cannot be found or started.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	const op = "run script"
	path, err := r.resolve(op, name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	if r.cfg.Interpreter != "" {
		cmd = exec.CommandContext(ctx, r.cfg.Interpreter, append([]string{path}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, path, args...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the script may hold the pipes open after a kill.
	cmd.WaitDelay = 2 * time.Second

	res := &Result{RunID: uuid.New().String(), Script: name}
	start := time.Now()
	err = cmd.Run()
	res.Duration = time.Since(start)
	res.Output = stdout.String()
	res.Error = stderr.String()

	switch e := err.(type) {
	case nil:
	case *exec.ExitError:
		res.ExitCode = e.ExitCode()
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.Error += fmt.Sprintf("script timed out after %s\n", r.cfg.Timeout)
		}
	default:
		return nil, fmt.Errorf("%s: start %s: %w", op, name, err)
	}

	logging.ScriptRun(ctx, res.RunID, name, res.ExitCode, res.Duration, "timed_out", res.TimedOut)
	return res, nil
}

// List returns the regular files in the script directory, sorted. A
// missing directory lists nothing.
func (r *Runner) List() ([]string, error) {
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list scripts: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
