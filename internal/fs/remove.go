package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotUnderPrefix is returned when a removal target does not lie strictly
// inside the directory it is confined to.
type ErrNotUnderPrefix struct {
	Target string
	Prefix string
}

func (e *ErrNotUnderPrefix) Error() string {
	return fmt.Sprintf("target %q is not under allowed prefix %q", e.Target, e.Prefix)
}

// RemoveUnder removes target (a file or a directory tree) only if it lies
// strictly inside allowedPrefix. It clears a stale build descriptor from the
// run's work dir before a new one is written.
//
// Checks, in order:
//   - target is cleaned and its symlinks resolved; a target that does not
//     exist is not an error
//   - allowedPrefix is cleaned and resolved; if it cannot be, removal fails
//     closed
//   - the resolved target must be a proper subpath of the resolved prefix;
//     the prefix itself is never removed
//
// Any other resolution failure (permission denied, a loop) also fails closed
// with *ErrNotUnderPrefix. Errors from the removal itself are returned as is.
func RemoveUnder(target, allowedPrefix string) error {
	cleanTarget := filepath.Clean(target)
	deny := &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}

	resolvedTarget, err := filepath.EvalSymlinks(cleanTarget)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return deny
	}

	resolvedPrefix, err := filepath.EvalSymlinks(filepath.Clean(allowedPrefix))
	if err != nil || !IsSubpath(resolvedTarget, resolvedPrefix) {
		return deny
	}

	return os.RemoveAll(cleanTarget)
}

// IsSubpath reports whether target lies strictly inside prefix. Both paths
// should already be cleaned and resolved; equal paths, siblings sharing a
// name prefix ("/w/a" vs "/w/ab") and anything reached through ".." are
// not subpaths.
func IsSubpath(target, prefix string) bool {
	rel, err := filepath.Rel(prefix, target)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
