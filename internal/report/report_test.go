package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/job"
	"github.com/NielsdaWheelz/archtest/internal/runner"
	"github.com/NielsdaWheelz/archtest/internal/signature"
)

func sampleResult(t *testing.T) *runner.Result {
	t.Helper()
	dir := t.TempDir()
	sig := filepath.Join(dir, "add-01", "DUT-kian.signature")
	if err := os.MkdirAll(filepath.Dir(sig), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sig, bytes.Repeat([]byte("0"), 512), 0o644); err != nil {
		t.Fatal(err)
	}

	return &runner.Result{
		RunID:    "run-1",
		Outcome:  runner.OutcomeCompleted,
		Duration: 1200 * time.Millisecond,
		Jobs: []runner.JobResult{
			{
				ID: "TARGET0", Test: "add-01", WorkDir: filepath.Join(dir, "add-01"),
				State:     runner.StateSucceeded,
				Window:    signature.Window{Start: 0x80002000, End: 0x80002200},
				Signature: sig,
				Log:       filepath.Join(dir, "add-01", "DUT-kian.log"),
				Duration:  40 * time.Millisecond,
			},
			{
				ID: "TARGET1", Test: "add-02", WorkDir: filepath.Join(dir, "add-02"),
				State:    runner.StateFailed,
				Code:     errors.EJobExecution,
				Step:     job.StepCompile,
				Err:      errors.New(errors.EJobExecution, "compile step exited with 1"),
				Log:      filepath.Join(dir, "add-02", "DUT-kian.log"),
				Duration: 30 * time.Millisecond,
			},
		},
	}
}

func TestFromResult(t *testing.T) {
	r := FromResult(sampleResult(t), "DUT-kian", "build-and-run", fs.NewRealFS())

	if r.Total != 2 || r.Succeeded != 1 || r.Failed != 1 {
		t.Errorf("counts = %d/%d/%d", r.Total, r.Succeeded, r.Failed)
	}
	if r.Jobs[0].SignatureBytes != 512 {
		t.Errorf("SignatureBytes = %d, want 512", r.Jobs[0].SignatureBytes)
	}
	if r.Jobs[0].SigStart == nil || *r.Jobs[0].SigStart != 0x80002000 {
		t.Errorf("SigStart = %v", r.Jobs[0].SigStart)
	}
	if r.Jobs[1].SigStart != nil {
		t.Error("failed job should have no window")
	}

	failed := r.FailedJobs()
	if len(failed) != 1 || failed[0].Test != "add-02" || failed[0].ErrorCode != "E_JOB_EXECUTION" || failed[0].Step != "compile" {
		t.Errorf("FailedJobs() = %+v", failed)
	}
	if failed[0].Message != "compile step exited with 1" {
		t.Errorf("Message = %q", failed[0].Message)
	}
}

func TestWrite(t *testing.T) {
	r := FromResult(sampleResult(t), "DUT-kian", "build-and-run", fs.NewRealFS())
	path := Path(t.TempDir())

	if err := Write(path, r); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"schema_version", "run_id", "identity", "outcome", "jobs", "failed"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %s", field)
		}
	}
}

func TestWriteHuman(t *testing.T) {
	r := FromResult(sampleResult(t), "DUT-kian", "build-and-run", fs.NewRealFS())

	var buf bytes.Buffer
	if err := WriteHuman(&buf, r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	lines := strings.Split(out, "\n")

	if !strings.HasPrefix(lines[0], "TEST    STATUS     CODE             DURATION  SIGNATURE") {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{
		"add-01  succeeded  -                40ms      512 B",
		"add-02  failed     E_JOB_EXECUTION  30ms      -",
		"2 tests: 1 succeeded, 1 failed in 1.2s",
		"failed:\n  add-02  E_JOB_EXECUTION  ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteHumanEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHuman(&buf, Report{}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "no tests\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", TestMaxLen+5)
	got := truncate(long)
	if len([]rune(got)) != TestMaxLen || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate() = %q", got)
	}
	if truncate("add-01") != "add-01" {
		t.Error("short names must be unchanged")
	}
}
