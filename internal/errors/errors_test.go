package errors

import (
	"bytes"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(EConfig, "no supported xlen")

	if err.Error() != "E_CONFIG: no supported xlen" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_CONFIG: no supported xlen")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(ETemplate, "bad macro", cause)

	if err.Error() != "E_TEMPLATE: bad macro" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_TEMPLATE: bad macro")
	}

	var ae *ArchtestError
	if !errors.As(err, &ae) {
		t.Fatal("errors.As failed")
	}
	if ae.Cause != cause {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, ""},
		{"archtest error", New(EUsage, "x"), EUsage},
		{"wrapped archtest error", Wrap(ESymbolResolution, "y", errors.New("z")), ESymbolResolution},
		{"non-archtest error", errors.New("plain"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"E_USAGE", New(EUsage, "x"), 2},
		{"E_JOBS_FAILED", New(EJobsFailed, "x"), 1},
		{"non-archtest error", errors.New("x"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"E_USAGE", New(EUsage, "bad args"), "error_code: E_USAGE\nbad args\n"},
		{"plain", errors.New("boom"), "boom\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Print(&buf, tt.err)
			if got := buf.String(); got != tt.want {
				t.Errorf("Print() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewWithDetailsCopiesMap(t *testing.T) {
	details := map[string]string{"test": "add-01"}
	err := NewWithDetails(ETemplate, "bad", details)
	details["test"] = "mutated"

	ae, ok := AsArchtestError(err)
	if !ok {
		t.Fatal("AsArchtestError failed")
	}
	if ae.Details["test"] != "add-01" {
		t.Errorf("details were not copied: got %q", ae.Details["test"])
	}

	if err := NewWithDetails(ETemplate, "bad", map[string]string{}); err.(*ArchtestError).Details != nil {
		t.Error("empty details should be stored as nil")
	}
}

func TestIsJobScoped(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{ESymbolResolution, true},
		{EJobExecution, true},
		{EStepTimeout, true},
		{ECancelled, true},
		{EPersistFailed, false},
		{EInternal, false},
		{EConfig, false},
		{ETemplate, false},
		{EJobsFailed, false},
	}
	for _, tt := range tests {
		if got := IsJobScoped(tt.code); got != tt.want {
			t.Errorf("IsJobScoped(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
