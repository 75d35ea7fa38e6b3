// Package version holds the build version for archtest.
package version

import (
	"runtime"
	"runtime/debug"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Commit is the git commit SHA, set at build time via -ldflags.
var Commit = ""

// FullVersion returns "vX.Y.Z (commit <sha>)", or just the version when no
// commit was stamped. Dev builds fall back to the VCS revision recorded by
// the Go toolchain, if any.
func FullVersion() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if commit != "" {
		return Version + " (commit " + commit + ")"
	}
	return Version
}

// GoVersion returns the Go runtime version archtest was built with.
func GoVersion() string {
	return runtime.Version()
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}
