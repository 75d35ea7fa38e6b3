// Package report aggregates a run's job results into report.json and a
// human-readable summary.
package report

import (
	"path/filepath"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/runner"
)

// SchemaVersion is the report.json schema version.
const SchemaVersion = "1.0"

// FileName is the report file name inside the work dir.
const FileName = "report.json"

// Report is the public contract of report.json.
type Report struct {
	SchemaVersion string `json:"schema_version"`
	RunID         string `json:"run_id"`
	Identity      string `json:"identity"`
	Mode          string `json:"mode"`
	Outcome       string `json:"outcome"`
	DurationMS    int64  `json:"duration_ms"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	Jobs []Job `json:"jobs"`
}

// Job is one job's row in the report.
type Job struct {
	ID         string `json:"id"`
	Test       string `json:"test"`
	WorkDir    string `json:"work_dir"`
	State      string `json:"state"`
	DurationMS int64  `json:"duration_ms"`
	Log        string `json:"log"`

	ErrorCode string `json:"error_code,omitempty"`
	Step      string `json:"step,omitempty"`
	Message   string `json:"message,omitempty"`

	SigStart       *uint64 `json:"sig_start,omitempty"`
	SigEnd         *uint64 `json:"sig_end,omitempty"`
	Signature      string  `json:"signature,omitempty"`
	SignatureBytes int64   `json:"signature_bytes,omitempty"`
}

// Path returns the report path inside workDir.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

// FromResult builds the report for a finished run. Signature sizes are read
// through filesystem; a missing signature file leaves the size at zero.
func FromResult(res *runner.Result, identity, mode string, filesystem fs.FS) Report {
	r := Report{
		SchemaVersion: SchemaVersion,
		RunID:         res.RunID,
		Identity:      identity,
		Mode:          mode,
		Outcome:       string(res.Outcome),
		DurationMS:    res.Duration.Milliseconds(),
		Total:         len(res.Jobs),
		Jobs:          make([]Job, 0, len(res.Jobs)),
	}

	for _, jr := range res.Jobs {
		j := Job{
			ID:         jr.ID,
			Test:       jr.Test,
			WorkDir:    jr.WorkDir,
			State:      string(jr.State),
			DurationMS: jr.Duration.Milliseconds(),
			Log:        jr.Log,
			Signature:  jr.Signature,
		}
		if jr.Window.End > jr.Window.Start {
			start, end := jr.Window.Start, jr.Window.End
			j.SigStart, j.SigEnd = &start, &end
		}
		switch jr.State {
		case runner.StateSucceeded:
			r.Succeeded++
		case runner.StateFailed:
			r.Failed++
			j.ErrorCode = string(jr.Code)
			j.Step = string(jr.Step)
			if ae, ok := errors.AsArchtestError(jr.Err); ok {
				j.Message = ae.Msg
			} else if jr.Err != nil {
				j.Message = jr.Err.Error()
			}
		}
		if jr.Signature != "" {
			if info, err := filesystem.Stat(jr.Signature); err == nil {
				j.SignatureBytes = info.Size()
			}
		}
		r.Jobs = append(r.Jobs, j)
	}
	return r
}

// FailedJobs returns the failed rows in report order.
func (r Report) FailedJobs() []Job {
	var out []Job
	for _, j := range r.Jobs {
		if j.State == string(runner.StateFailed) {
			out = append(out, j)
		}
	}
	return out
}

// Write writes the report atomically. Returns E_PERSIST_FAILED on error.
func Write(path string, r Report) error {
	if err := fs.WriteJSONAtomic(path, r, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write report", err, map[string]string{"path": path})
	}
	return nil
}
