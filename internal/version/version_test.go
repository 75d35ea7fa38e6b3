package version

import (
	"strings"
	"testing"
)

func TestFullVersion(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "v1.2.0", "abc1234"
	if got := FullVersion(); got != "v1.2.0 (commit abc1234)" {
		t.Errorf("FullVersion() = %q", got)
	}

	Commit = ""
	if got := FullVersion(); !strings.HasPrefix(got, "v1.2.0") {
		t.Errorf("FullVersion() = %q", got)
	}
}

func TestGoVersion(t *testing.T) {
	if !strings.HasPrefix(GoVersion(), "go") && !strings.HasPrefix(GoVersion(), "devel") {
		t.Errorf("GoVersion() = %q", GoVersion())
	}
}
