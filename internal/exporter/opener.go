package exporter

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenPath opens a file with the host's default viewer. The viewer process
// is released immediately; callers treat failures as advisory.
func OpenPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return cmd.Process.Release()
}

func openWithViewer(path string) error { return OpenPath(path) }
