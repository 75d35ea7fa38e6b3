// Package errors provides error formatting for archtest CLI output.
package errors

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys and longer tails.
	Verbose bool

	// Tailer provides output tail lines for failed job steps.
	// If nil, PrintWithOptions reads the job log directly (bounded I/O).
	Tailer func(logPath string, maxLines int) ([]string, error)
}

// Context key whitelist (default mode, in order)
var defaultContextKeys = []string{
	"op",
	"test",
	"job_id",
	"step",
	"work_dir",
	"path",
	"field",
	"command",
	"exit_code",
	"duration",
	"failed",
	"report",
	"log",
}

// Additional context keys for verbose mode
var verboseContextKeys = []string{
	"op",
	"run_id",
	"test",
	"job_id",
	"step",
	"work_dir",
	"path",
	"field",
	"command",
	"symbol",
	"arch",
	"abi",
	"xlen",
	"exit_code",
	"duration",
	"duration_ms",
	"failed",
	"report",
	"log",
	"descriptor",
	"signal",
	"timed_out",
	"cancelled",
	"endpoint",
	"bucket",
	"hint",
}

// Output bounds.
const (
	defaultMaxLines = 20
	defaultMaxChars = 8 * 1024
	verboseMaxLines = 100
	verboseMaxChars = 64 * 1024

	maxValueLen      = 256 // single-line context values
	maxExtraValueLen = 128 // values under extra:
	maxOutputLineLen = 512 // lines of the log tail
	maxListedTests   = 10  // entries of the failed: list before eliding
)

// Format formats an error for display without I/O.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	ae, ok := AsArchtestError(err)
	if !ok {
		return err.Error() + "\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "error_code: %s\n%s\n\n", ae.Code, ae.Msg)

	keys := defaultContextKeys
	if opts.Verbose {
		keys = verboseContextKeys
	}
	printed := writeContext(&sb, ae.Details, keys)
	if opts.Verbose {
		writeExtra(&sb, ae.Details, printed)
	}

	if hint := ae.Details["hint"]; hint != "" {
		fmt.Fprintf(&sb, "\nhint: %s\n", hint)
	}
	for _, try := range deriveTryLines(ae) {
		fmt.Fprintf(&sb, "try: %s\n", try)
	}
	return sb.String()
}

// writeContext writes the whitelisted detail keys in order and returns the
// set it printed. "failed" holds a comma-separated test list and is written
// one test per line.
func writeContext(sb *strings.Builder, details map[string]string, keys []string) map[string]bool {
	printed := make(map[string]bool)
	for _, key := range keys {
		val := details[key]
		if val == "" || key == "hint" {
			continue
		}
		printed[key] = true
		if key == "failed" {
			writeFailedList(sb, val)
			continue
		}
		fmt.Fprintf(sb, "%s: %s\n", key, sanitizeValue(val, maxValueLen))
	}
	return printed
}

func writeFailedList(sb *strings.Builder, val string) {
	tests := strings.Split(val, ",")
	sb.WriteString("failed:\n")
	for i, test := range tests {
		if i == maxListedTests {
			fmt.Fprintf(sb, "  ... and %d more (see report)\n", len(tests)-maxListedTests)
			break
		}
		fmt.Fprintf(sb, "  %s\n", sanitizeValue(test, maxValueLen))
	}
}

func writeExtra(sb *strings.Builder, details map[string]string, printed map[string]bool) {
	var extra []string
	for key, val := range details {
		if printed[key] || key == "hint" || val == "" {
			continue
		}
		extra = append(extra, key)
	}
	if len(extra) == 0 {
		return
	}
	sort.Strings(extra)
	sb.WriteString("\nextra:\n")
	for _, key := range extra {
		fmt.Fprintf(sb, "  %s: %s\n", key, sanitizeValue(details[key], maxExtraValueLen))
	}
}

// PrintWithOptions writes a formatted error to w. For a failed job step it
// also reads a bounded tail of that job's log.
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}

	output := Format(err, opts)

	if ae, ok := AsArchtestError(err); ok && hasJobLog(ae) {
		maxLines, maxChars := defaultMaxLines, defaultMaxChars
		if opts.Verbose {
			maxLines, maxChars = verboseMaxLines, verboseMaxChars
		}
		tail := opts.Tailer
		if tail == nil {
			tail = func(path string, n int) ([]string, error) { return readTail(path, n, maxChars) }
		}
		if lines, tailErr := tail(ae.Details["log"], maxLines); tailErr == nil && len(lines) > 0 {
			output = insertOutputBlock(output, lines, maxLines)
		}
	}

	_, _ = io.WriteString(w, output)
}

// sanitizeValue folds val onto one line and truncates it to maxLen bytes.
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")
	if len(val) > maxLen {
		return val[:maxLen] + "…"
	}
	return val
}

// hasJobLog reports whether ae names the log of a single failed job.
func hasJobLog(ae *ArchtestError) bool {
	switch ae.Code {
	case EJobExecution, EStepTimeout, ESymbolResolution, EJobsFailed:
		return ae.Details["log"] != ""
	}
	return false
}

// readTail returns the last maxLines lines of the file at path, reading at
// most maxChars bytes from its end. A line cut by that bound is dropped.
func readTail(path string, maxLines, maxChars int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	off := size - int64(maxChars)
	if off < 0 {
		off = 0
	}
	buf := make([]byte, size-off)
	if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
		return nil, err
	}
	if off > 0 {
		if nl := bytes.IndexByte(buf, '\n'); nl >= 0 {
			buf = buf[nl+1:]
		}
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimRight(string(buf), "\n"), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if len(line) > maxOutputLineLen {
			line = line[:maxOutputLineLen] + "…"
		}
		lines = append(lines, line)
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// insertOutputBlock places the log tail before the hint and try lines.
func insertOutputBlock(output string, lines []string, maxLines int) string {
	var block strings.Builder
	if len(lines) >= maxLines {
		fmt.Fprintf(&block, "\noutput (last %d lines):\n", len(lines))
	} else {
		fmt.Fprintf(&block, "\noutput (%d lines):\n", len(lines))
	}
	for _, line := range lines {
		fmt.Fprintf(&block, "  %s\n", line)
	}

	for _, marker := range []string{"\nhint: ", "\ntry: "} {
		if idx := strings.Index(output, marker); idx >= 0 {
			return output[:idx] + block.String() + output[idx:]
		}
	}
	return output + block.String()
}

// deriveTryLines returns follow-up commands for the error.
func deriveTryLines(ae *ArchtestError) []string {
	switch ae.Code {
	case EConfig, EToolNotFound, EInvalidConfig:
		return []string{"archtest doctor"}
	case EJobsFailed:
		var lines []string
		if log := ae.Details["log"]; log != "" {
			lines = append(lines, "less "+log)
		}
		if desc := ae.Details["descriptor"]; desc != "" {
			lines = append(lines, "archtest exec --descriptor "+desc)
		}
		return lines
	case EJobExecution, EStepTimeout, ESymbolResolution:
		if log := ae.Details["log"]; log != "" {
			return []string{"less " + log}
		}
	}
	return nil
}
