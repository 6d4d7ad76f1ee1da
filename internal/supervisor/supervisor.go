// Package supervisor owns the single long-running analytics-service process.
// It starts the service once at application launch, stops it once at
// shutdown, and forwards its console output. It never parses that output:
// the service is observed over HTTP by its clients, not by this package.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/whalescope/whalescope/internal/env"
)

// ErrAlreadyRunning is returned by Start when a service instance is already
// running. A second start is deliberately refused rather than silently
// spawning a duplicate and leaking it.
var ErrAlreadyRunning = errors.New("analytics service is already running")

type State int

const (
	Unstarted State = iota
	Running
	Exited
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the supervised process.
type Status struct {
	State      State
	PID        int
	StartedAt  time.Time
	ExitCode   int
	StderrTail string
}

// Supervisor manages the lifecycle of the analytics service. The raw process
// handle is never exposed; callers get Start, Stop and Status only.
type Supervisor struct {
	paths  env.Paths
	script string
	logger *slog.Logger

	// Console forwarding targets; os.Stdout/os.Stderr unless overridden in
	// tests.
	stdout io.Writer
	stderr io.Writer

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	startedAt time.Time
	exitCode  int
	sigSent   bool
	tail      *tailBuffer
}

func New(paths env.Paths, script string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		paths:  paths,
		script: script,
		logger: logger,
		stdout: os.Stdout,
		stderr: os.Stderr,
		state:  Unstarted,
	}
}

// Start spawns the service process. Calling Start while an instance is
// Running returns ErrAlreadyRunning.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return ErrAlreadyRunning
	}

	scriptPath := s.paths.ScriptPath(s.script)
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("service script: %w", err)
	}

	tail := newTailBuffer(4 << 10)
	cmd := exec.Command(s.paths.Interpreter, scriptPath)
	cmd.Dir = s.paths.WorkDir
	cmd.Stdout = s.stdout
	cmd.Stderr = io.MultiWriter(s.stderr, tail)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting analytics service: %w", err)
	}

	s.cmd = cmd
	s.tail = tail
	s.state = Running
	s.startedAt = time.Now()
	s.sigSent = false

	s.logger.Info("service_started", "script", s.script, "pid", cmd.Process.Pid)

	go s.watch(cmd)
	return nil
}

// watch records the process exit. An exit that was not requested through
// Stop is logged but never crashes the host; data loads simply start failing
// until the application is restarted.
func (s *Supervisor) watch(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != cmd {
		return
	}

	s.exitCode = cmd.ProcessState.ExitCode()
	requested := s.sigSent
	if requested {
		s.state = Stopped
	} else {
		s.state = Exited
	}
	s.cmd = nil

	if requested {
		s.logger.Info("service_stopped", "exit_code", s.exitCode)
		return
	}
	s.logger.Error("service_exited_unexpectedly",
		"exit_code", s.exitCode,
		"error", errString(err),
		"stderr_tail", s.tail.String(),
	)
}

// Stop sends one graceful termination signal to the service's process group.
// It is a no-op when the process was never started, already exited, or Stop
// was already called: the signal is delivered at most once per Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running || s.cmd == nil || s.sigSent {
		return
	}
	s.sigSent = true

	pid := s.cmd.Process.Pid
	s.logger.Info("service_stopping", "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		s.logger.Warn("service_signal_failed", "pid", pid, "error", err)
	}
}

// Status returns a snapshot of the supervised process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.state,
		StartedAt: s.startedAt,
		ExitCode:  s.exitCode,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	if s.tail != nil {
		st.StderrTail = s.tail.String()
	}
	return st
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// tailBuffer keeps the last size bytes written to it. Used to retain a tail
// of the service's stderr for diagnostics without buffering its full output.
type tailBuffer struct {
	mu   sync.Mutex
	b    []byte
	size int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{b: make([]byte, 0, size), size: size}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p) >= t.size {
		t.b = append(t.b[:0], p[len(p)-t.size:]...)
		return len(p), nil
	}
	if len(t.b)+len(p) > t.size {
		drop := len(t.b) + len(p) - t.size
		t.b = t.b[drop:]
	}
	t.b = append(t.b, p...)
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}
