package main

import (
	"fmt"
	"io"
	"os"
)

// Human-facing command output. Everything goes to stderr so JSON payloads on
// stdout stay machine-readable; tests redirect outW.
var outW io.Writer = os.Stderr

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func paint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintf(outW, "%s %s\n", paint(ansiGreen, "ok"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintf(outW, "%s %s\n", paint(ansiRed, "error:"), fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintf(outW, "%s %s\n", paint(ansiYellow, "warn:"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintf(outW, "%s\n", paint(ansiDim, "... "+fmt.Sprintf(format, args...)))
}

// printStatus renders one aligned "label  value" row of a status report.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(outW, "  %s %s\n",
		paint(ansiDim, fmt.Sprintf("%-20s", label)),
		fmt.Sprintf(format, args...))
}
