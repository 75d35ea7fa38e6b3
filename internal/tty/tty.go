// Package tty provides terminal detection for archtest output.
package tty

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTTY returns true if the given file is a terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// IsTerminalWriter returns true if w is an *os.File attached to a terminal.
// Per-job progress lines are only written when this holds.
func IsTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && IsTTY(f)
}
