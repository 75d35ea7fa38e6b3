package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// TestMaxLen is the maximum display length of a test name in the table.
const TestMaxLen = 60

type row struct {
	test, status, code, duration, signature string
}

// WriteHuman writes the per-job table followed by a summary and the list of
// failed tests.
func WriteHuman(w io.Writer, r Report) error {
	if len(r.Jobs) == 0 {
		_, err := fmt.Fprintln(w, "no tests")
		return err
	}

	rows := make([]row, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		rows = append(rows, formatRow(j))
	}
	widths := columnWidths(rows)

	header := row{"TEST", "STATUS", "CODE", "DURATION", "SIGNATURE"}
	if _, err := fmt.Fprintln(w, widths.format(header)); err != nil {
		return err
	}
	for _, rw := range rows {
		if _, err := fmt.Fprintln(w, widths.format(rw)); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\n%s tests: %s succeeded, %s failed in %s\n",
		humanize.Comma(int64(r.Total)),
		humanize.Comma(int64(r.Succeeded)),
		humanize.Comma(int64(r.Failed)),
		formatDuration(r.DurationMS),
	); err != nil {
		return err
	}

	failed := r.FailedJobs()
	if len(failed) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nfailed:"); err != nil {
		return err
	}
	for _, j := range failed {
		if _, err := fmt.Fprintf(w, "  %s  %s  %s\n", j.Test, j.ErrorCode, j.Log); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(j Job) row {
	rw := row{
		test:     truncate(j.Test),
		status:   j.State,
		code:     j.ErrorCode,
		duration: formatDuration(j.DurationMS),
	}
	if rw.code == "" {
		rw.code = "-"
	}
	switch {
	case j.SignatureBytes > 0:
		rw.signature = humanize.Bytes(uint64(j.SignatureBytes))
	case j.Signature != "":
		rw.signature = "empty"
	default:
		rw.signature = "-"
	}
	return rw
}

type colWidths struct {
	test, status, code, duration int
}

func columnWidths(rows []row) colWidths {
	widths := colWidths{
		test:     len("TEST"),
		status:   len("STATUS"),
		code:     len("CODE"),
		duration: len("DURATION"),
	}
	for _, rw := range rows {
		widths.test = max(widths.test, len(rw.test))
		widths.status = max(widths.status, len(rw.status))
		widths.code = max(widths.code, len(rw.code))
		widths.duration = max(widths.duration, len(rw.duration))
	}
	return widths
}

func (c colWidths) format(rw row) string {
	return fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %s",
		c.test, rw.test,
		c.status, rw.status,
		c.code, rw.code,
		c.duration, rw.duration,
		rw.signature,
	)
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// truncate shortens a test name to TestMaxLen runes, adding an ellipsis.
func truncate(name string) string {
	runes := []rune(name)
	if len(runes) <= TestMaxLen {
		return name
	}
	return string(runes[:TestMaxLen-1]) + "…"
}
