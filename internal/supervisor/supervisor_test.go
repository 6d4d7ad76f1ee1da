package supervisor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/whalescope/whalescope/internal/env"
)

func testPaths(t *testing.T) env.Paths {
	t.Helper()
	dir := t.TempDir()
	return env.Paths{
		Interpreter: "/bin/sh",
		ScriptDir:   dir,
		WorkDir:     dir,
	}
}

func writeScript(t *testing.T, p env.Paths, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(p.ScriptDir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status().State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", s.Status().State, want)
}

func TestStartAndStop(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "sleep 30\n")

	s := New(p, "service.sh", nil)
	if got := s.Status().State; got != Unstarted {
		t.Fatalf("initial state = %v", got)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Status().State; got != Running {
		t.Fatalf("state after Start = %v", got)
	}
	if s.Status().PID == 0 {
		t.Error("PID not recorded")
	}

	s.Stop()
	waitForState(t, s, Stopped)
}

func TestSecondStartWhileRunningIsRefused(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "sleep 30\n")

	s := New(p, "service.sh", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		s.Stop()
		waitForState(t, s, Stopped)
	}()

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopTwiceIsNoop(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "sleep 30\n")

	s := New(p, "service.sh", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Stop()
	waitForState(t, s, Stopped)

	// Second stop after exit: no panic, no error, no second signal.
	s.Stop()
	if got := s.Status().State; got != Stopped {
		t.Errorf("state after double Stop = %v", got)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := New(testPaths(t), "service.sh", nil)
	s.Stop()
	if got := s.Status().State; got != Unstarted {
		t.Errorf("state = %v, want Unstarted", got)
	}
}

func TestUnexpectedExitIsRecorded(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "echo 'fatal: db locked' >&2\nexit 2\n")

	s := New(p, "service.sh", nil)
	s.stdout = &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, Exited)

	st := s.Status()
	if st.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", st.ExitCode)
	}
	if !bytes.Contains([]byte(st.StderrTail), []byte("db locked")) {
		t.Errorf("StderrTail = %q, want captured stderr", st.StderrTail)
	}
}

func TestRestartAfterExitIsAllowed(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "exit 0\n")

	s := New(p, "service.sh", nil)
	s.stdout = &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}

	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitForState(t, s, Exited)

	if err := s.Start(); err != nil {
		t.Fatalf("Start after exit: %v", err)
	}
	waitForState(t, s, Exited)
}

func TestStartMissingScript(t *testing.T) {
	s := New(testPaths(t), "no_such_service.sh", nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected error for missing service script")
	}
}

func TestConsoleOutputForwarded(t *testing.T) {
	p := testPaths(t)
	writeScript(t, p, "service.sh", "echo 'listening on 5001'\n")

	var out bytes.Buffer
	s := New(p, "service.sh", nil)
	s.stdout = &out
	s.stderr = &bytes.Buffer{}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, Exited)

	if !bytes.Contains(out.Bytes(), []byte("listening on 5001")) {
		t.Errorf("stdout not forwarded, got %q", out.String())
	}
}
