// Package job turns test list entries into self-contained per-test jobs.
package job

import (
	"fmt"
	"path/filepath"

	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// StepKind names a step of a job. Steps always run in the order below.
type StepKind string

const (
	StepCompile  StepKind = "compile"
	StepSigStart StepKind = "sig_start"
	StepSigEnd   StepKind = "sig_end"
	StepSimulate StepKind = "simulate"
)

// BinaryName is the compiled test artifact, relative to the job's work dir.
const BinaryName = "my.elf"

// Step is one structured step of a job.
type Step struct {
	Kind    StepKind          `yaml:"kind" json:"kind"`
	Command toolchain.Command `yaml:"command" json:"command"`

	// Symbol is set on sig_start/sig_end steps.
	Symbol string `yaml:"symbol,omitempty" json:"symbol,omitempty"`
}

// Query returns the symbol query of a sig_start/sig_end step.
func (s Step) Query() toolchain.Query {
	return toolchain.Query{Command: s.Command, Symbol: s.Symbol}
}

// Job is the unit the orchestrator runs. Every step executes with the
// working directory set to WorkDir; paths in steps are absolute or relative
// to WorkDir, so jobs may run concurrently in any order.
type Job struct {
	ID      string `yaml:"id" json:"id"`
	Test    string `yaml:"test" json:"test"`
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Signature is the signature file name, relative to WorkDir.
	Signature string `yaml:"signature" json:"signature"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// SignaturePath returns the absolute signature file path.
func (j Job) SignaturePath() string {
	return filepath.Join(j.WorkDir, j.Signature)
}

// Step returns the step of the given kind.
func (j Job) Step(kind StepKind) (Step, bool) {
	for _, s := range j.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return Step{}, false
}

// Validate checks that a job (typically decoded from a descriptor) has the
// fixed step sequence and an absolute work dir.
func (j Job) Validate() error {
	if j.ID == "" || j.Test == "" {
		return fmt.Errorf("job must have id and test")
	}
	if !filepath.IsAbs(j.WorkDir) {
		return fmt.Errorf("job %s: work_dir %q is not absolute", j.ID, j.WorkDir)
	}
	want := []StepKind{StepCompile, StepSigStart, StepSigEnd, StepSimulate}
	if len(j.Steps) != len(want) {
		return fmt.Errorf("job %s: want %d steps, got %d", j.ID, len(want), len(j.Steps))
	}
	for i, k := range want {
		s := j.Steps[i]
		if s.Kind != k {
			return fmt.Errorf("job %s: step %d is %q, want %q", j.ID, i, s.Kind, k)
		}
		if !s.Command.Inert && s.Command.Name == "" {
			return fmt.Errorf("job %s: step %s has no command", j.ID, k)
		}
		if (k == StepSigStart || k == StepSigEnd) && s.Symbol == "" {
			return fmt.Errorf("job %s: step %s has no symbol", j.ID, k)
		}
	}
	if j.Steps[0].Command.Inert {
		return fmt.Errorf("job %s: compile step cannot be inert", j.ID)
	}
	return nil
}
