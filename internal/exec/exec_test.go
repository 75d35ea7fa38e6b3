package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := NewRealRunner().LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRealRunnerCapturesOutput(t *testing.T) {
	requireSh(t)

	dir := t.TempDir()
	res, err := NewRealRunner().Run(context.Background(), "sh", []string{"-c", "pwd; echo oops >&2"}, RunOpts{Dir: dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.HasSuffix(strings.TrimSpace(res.Stdout), dir) {
		t.Errorf("Stdout = %q, want suffix %q", res.Stdout, dir)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("Stderr = %q, want oops", res.Stderr)
	}
}

func TestRealRunnerNonZeroExit(t *testing.T) {
	requireSh(t)

	res, err := NewRealRunner().Run(context.Background(), "sh", []string{"-c", "exit 7"}, RunOpts{})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", res.ExitCode)
	}
}

func TestRealRunnerMissingBinary(t *testing.T) {
	_, err := NewRealRunner().Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, RunOpts{})
	if err == nil {
		t.Fatal("expected start error for missing binary")
	}
}

func TestRealRunnerContextTimeout(t *testing.T) {
	requireSh(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := NewRealRunner().Run(ctx, "sh", []string{"-c", "sleep 30"}, RunOpts{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if res.ExitCode == 0 {
		t.Error("killed process should not report exit 0")
	}
	if time.Since(start) > 10*time.Second {
		t.Error("process group was not killed promptly")
	}
}
