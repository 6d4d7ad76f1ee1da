package main

import (
	"bytes"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := outW
	outW = &buf
	t.Cleanup(func() { outW = orig })
	return &buf
}

func TestOutput_NoColorStripsANSI(t *testing.T) {
	buf := captureOutput(t)
	origNoColor := noColor
	noColor = true
	defer func() { noColor = origNoColor }()

	printSuccess("exported %d rows", 42)
	printError("bad %s", "input")
	printWarning("slow service")
	printStep("starting worker")

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Errorf("output contains ANSI escapes with noColor set: %q", out)
	}
	for _, want := range []string{"ok exported 42 rows", "error: bad input", "warn: slow service", "... starting worker"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q in %q", want, out)
		}
	}
}

func TestOutput_ColorWrapsMarkers(t *testing.T) {
	buf := captureOutput(t)
	origNoColor := noColor
	noColor = false
	defer func() { noColor = origNoColor }()

	printSuccess("done")

	if !strings.Contains(buf.String(), ansiGreen+"ok"+ansiReset) {
		t.Errorf("success marker not colored: %q", buf.String())
	}
}

func TestOutput_StatusRowsAligned(t *testing.T) {
	buf := captureOutput(t)
	origNoColor := noColor
	noColor = true
	defer func() { noColor = origNoColor }()

	printStatus("Gateway", "running on port %d", 5100)
	printStatus("Data dir", "/tmp/ws")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	v1 := strings.Index(lines[0], "running on port 5100")
	v2 := strings.Index(lines[1], "/tmp/ws")
	if v1 != v2 {
		t.Errorf("value columns not aligned: %d vs %d\n%s", v1, v2, buf.String())
	}
}
