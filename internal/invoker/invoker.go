// Package invoker runs one-shot worker scripts. One call is one child
// process: no pooling, no reuse, no shared state between invocations.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/whalescope/whalescope/internal/env"
)

// Result is the successful outcome of an invocation. Stdout is the worker's
// accumulated standard output with surrounding whitespace trimmed; for
// export-producing scripts it is contractually the path of the temp artifact.
type Result struct {
	Stdout string
}

// SpawnError means the child process never ran: missing script, missing
// interpreter, permission denied. Distinguishable from a worker that ran and
// exited nonzero.
type SpawnError struct {
	Script string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Script, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WorkerError means the worker ran and exited with a nonzero code.
type WorkerError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *WorkerError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s exited with code %d", e.Script, e.ExitCode)
}

// Runner abstracts Invoke so callers can be tested with a spy.
type Runner interface {
	Invoke(ctx context.Context, script string, args []string) (Result, error)
}

// Invoker spawns worker scripts with the resolved interpreter. Safe for
// concurrent use; each invocation owns its own process and buffers.
type Invoker struct {
	paths  env.Paths
	logger *slog.Logger
}

func New(paths env.Paths, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{paths: paths, logger: logger}
}

// Invoke runs one worker script to completion. Script lookup goes through the
// environment resolver; stdin is closed; stdout and stderr are accumulated
// independently. Exit code 0 resolves with the trimmed stdout, any other code
// returns a WorkerError carrying the captured stderr. Cancelling ctx sends
// SIGTERM to the child's process group.
func (inv *Invoker) Invoke(ctx context.Context, script string, args []string) (Result, error) {
	scriptPath := inv.paths.ScriptPath(script)

	// A missing script or interpreter must fail fast with a spawn error, not
	// surface as a confusing interpreter exit code.
	if _, err := os.Stat(scriptPath); err != nil {
		return Result{}, &SpawnError{Script: script, Err: err}
	}

	argv := append([]string{scriptPath}, args...)
	cmd := exec.CommandContext(ctx, inv.paths.Interpreter, argv...)
	cmd.Dir = inv.paths.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	inv.logger.Debug("worker_start", "script", script, "args", len(args))

	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Script: script, Err: err}
	}

	err := cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()

	inv.logger.Debug("worker_exit", "script", script, "exit_code", exitCode)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("worker %s: %w", script, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, &WorkerError{
				Script:   script,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		// Wait failed for a non-exit reason (I/O on the pipes).
		return Result{}, fmt.Errorf("worker %s: %w", script, err)
	}

	return Result{Stdout: strings.TrimSpace(stdout.String())}, nil
}
