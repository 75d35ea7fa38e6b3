// Package toolchain renders the structured commands a test job runs:
// compile, signature symbol queries and the DUT invocation.
// Nothing in this package performs I/O.
package toolchain

import (
	"strings"
)

// Command is one external invocation as an argument vector.
type Command struct {
	Name string   `yaml:"name,omitempty" json:"name,omitempty"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Inert marks a placeholder step that must not spawn a process.
	Inert bool `yaml:"inert,omitempty" json:"inert,omitempty"`
}

// NoOp returns the inert command used in place of simulation in build-only runs.
func NoOp() Command {
	return Command{Inert: true}
}

// Argv returns Name followed by Args.
func (c Command) Argv() []string {
	if c.Inert {
		return nil
	}
	return append([]string{c.Name}, c.Args...)
}

// String renders the command as a single shell-quoted line, for logs and
// error details only.
func (c Command) String() string {
	if c.Inert {
		return `echo "NO RUN"`
	}
	parts := make([]string, 0, len(c.Args)+1)
	for _, a := range c.Argv() {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

// Quote returns s quoted for a POSIX shell when it contains characters the
// shell would interpret.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=+:,@%", r)
}
