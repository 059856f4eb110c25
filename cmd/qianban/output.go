package main

import (
	"fmt"
	"os"
)

// tint is an ANSI SGR code. Rendering honors the --no-color flag.
type tint string

const (
	tintRed    tint = "31"
	tintGreen  tint = "32"
	tintYellow tint = "33"
	tintCyan   tint = "36"
	tintBold   tint = "1"
)

func paint(t tint, text string) string {
	if noColor {
		return text
	}
	return "\033[" + string(t) + "m" + text + "\033[0m"
}

// note prints a marked one-line message to stderr, keeping stdout for
// command output only.
func note(t tint, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(t, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	note(tintGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	note(tintRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	note(tintYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	note(tintCyan, "→", format, args...)
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(tintBold, label+":"), fmt.Sprintf(format, args...))
}
