// Package archive uploads a run's signatures and report to an object store.
// Archiving is best-effort: every upload is attempted regardless of earlier
// failures, and failures never hide job results.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/report"
)

// Content types of uploaded objects.
const (
	ContentTypeSignature = "text/plain"
	ContentTypeReport    = "application/json"
)

// Config holds the configuration for an archive operation.
type Config struct {
	Bucket   string
	RunID    string
	Identity string

	// ReportPath is the local report.json, uploaded last.
	ReportPath string
}

// Failure is one upload that did not complete.
type Failure struct {
	Key    string
	Reason string // bounded to 512 bytes
}

// Result holds the result of an archive operation.
type Result struct {
	Uploaded []string
	Failures []Failure
}

// Success returns true if every upload succeeded.
func (r *Result) Success() bool {
	return len(r.Failures) == 0
}

// SignatureKey returns the object key of a test's signature.
func SignatureKey(runID, test, identity string) string {
	return path.Join(runID, test, identity+".signature")
}

// ReportKey returns the object key of a run's report.
func ReportKey(runID string) string {
	return path.Join(runID, report.FileName)
}

// Archive uploads every produced signature in rep, then the report file.
func Archive(ctx context.Context, cfg Config, store Store, rep report.Report) *Result {
	result := &Result{}

	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		result.Failures = append(result.Failures, Failure{Key: cfg.Bucket, Reason: bound("ensure bucket: " + err.Error())})
		return result
	}

	for _, j := range rep.Jobs {
		if j.Signature == "" {
			continue
		}
		key := SignatureKey(cfg.RunID, j.Test, cfg.Identity)
		upload(ctx, store, cfg.Bucket, key, j.Signature, ContentTypeSignature, result)
	}
	if cfg.ReportPath != "" {
		upload(ctx, store, cfg.Bucket, ReportKey(cfg.RunID), cfg.ReportPath, ContentTypeReport, result)
	}
	return result
}

func upload(ctx context.Context, store Store, bucket, key, localPath, contentType string, result *Result) {
	f, err := os.Open(localPath)
	if err != nil {
		result.Failures = append(result.Failures, Failure{Key: key, Reason: bound(err.Error())})
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		result.Failures = append(result.Failures, Failure{Key: key, Reason: bound(err.Error())})
		return
	}
	if err := store.Put(ctx, bucket, key, f, info.Size(), contentType); err != nil {
		result.Failures = append(result.Failures, Failure{Key: key, Reason: bound(err.Error())})
		return
	}
	result.Uploaded = append(result.Uploaded, key)
}

// ToError converts a failed Result to an ArchtestError.
// Returns nil if the result indicates success.
func (r *Result) ToError(bucket string) error {
	if r.Success() {
		return nil
	}

	parts := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		parts = append(parts, f.Key+" ("+truncateReason(f.Reason)+")")
	}
	msg := fmt.Sprintf("archive failed: %d of %d uploads failed: %s",
		len(r.Failures), len(r.Failures)+len(r.Uploaded), strings.Join(parts, "; "))
	return errors.NewWithDetails(errors.EArchiveFailed, msg, map[string]string{"bucket": bucket})
}

// bound limits a stored failure reason to 512 bytes.
func bound(s string) string {
	return cutUTF8(s, 512)
}

// truncateReason truncates a reason string to 128 bytes for error messages.
func truncateReason(s string) string {
	const maxLen = 128
	if len(s) > maxLen {
		return cutUTF8(s, maxLen) + "..."
	}
	return s
}

// cutUTF8 returns the longest prefix of s of at most n bytes that does not
// split a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
