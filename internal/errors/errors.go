// Package errors defines the stable error code system for archtest.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract: report.json and stderr both carry them.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Run-fatal construction errors (surfaced before any job starts)
	EConfig   Code = "E_CONFIG"   // unsupported/missing ISA width, unreadable ISA spec
	ETemplate Code = "E_TEMPLATE" // malformed macro or path input for a test

	// Job-scoped errors (recorded per job, never halt sibling jobs)
	ESymbolResolution Code = "E_SYMBOL_RESOLUTION" // missing/malformed signature symbols, or start >= end
	EJobExecution     Code = "E_JOB_EXECUTION"     // compile or simulate step exited non-zero

	// Input loading
	ENoConfig         Code = "E_NO_CONFIG"
	EInvalidConfig    Code = "E_INVALID_CONFIG"
	ENoTestList       Code = "E_NO_TESTLIST"
	EInvalidTestList  Code = "E_INVALID_TESTLIST"
	EDescriptorFailed Code = "E_DESCRIPTOR_FAILED" // build descriptor could not be removed, written or read

	// Run outcome
	EJobsFailed    Code = "E_JOBS_FAILED"    // one or more jobs failed; see report
	EArchiveFailed Code = "E_ARCHIVE_FAILED" // signature upload to the object store failed
	EToolNotFound  Code = "E_TOOL_NOT_FOUND" // toolchain or DUT executable not on PATH
	EPersistFailed Code = "E_PERSIST_FAILED" // report or log could not be written
	EStepTimeout   Code = "E_STEP_TIMEOUT"   // a job step exceeded step_timeout
	ECancelled     Code = "E_CANCELLED"      // run interrupted before the job finished
	ENoJobs        Code = "E_NO_JOBS"        // the test list was empty
)

// ArchtestError is the standard error type for archtest errors.
type ArchtestError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *ArchtestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ArchtestError) Unwrap() error {
	return e.Cause
}

// New creates a new ArchtestError with the given code and message.
func New(code Code, msg string) error {
	return &ArchtestError{Code: code, Msg: msg}
}

// NewWithDetails creates a new ArchtestError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &ArchtestError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new ArchtestError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &ArchtestError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new ArchtestError wrapping an underlying error with details.
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &ArchtestError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not an ArchtestError.
func GetCode(err error) Code {
	var ae *ArchtestError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// AsArchtestError returns (*ArchtestError, true) if err is or wraps an ArchtestError.
func AsArchtestError(err error) (*ArchtestError, bool) {
	var ae *ArchtestError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsJobScoped reports whether code describes a failure of the job's own
// steps. Any other code on a job result (E_PERSIST_FAILED, E_INTERNAL) means
// archtest itself could not carry the job out.
func IsJobScoped(code Code) bool {
	switch code {
	case ESymbolResolution, EJobExecution, EStepTimeout, ECancelled:
		return true
	}
	return false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ae *ArchtestError
	if errors.As(err, &ae) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", ae.Code)
		_, _ = fmt.Fprintln(w, ae.Msg)
	} else {
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
