// Package descriptor writes and reads the build descriptor: the generated,
// disposable job set for one run. It is regenerated on every run and can be
// executed again later with `archtest exec`.
package descriptor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/job"
)

// SchemaVersion is the descriptor format version.
const SchemaVersion = "1"

// Descriptor is the on-disk job set. It deliberately carries no timestamps
// so regenerating it for unchanged input is byte-identical.
type Descriptor struct {
	SchemaVersion string    `yaml:"schema_version"`
	Identity      string    `yaml:"identity"`
	Mode          string    `yaml:"mode"`
	Parallelism   int       `yaml:"parallelism"`
	Jobs          []job.Job `yaml:"jobs"`
}

// New assembles a descriptor for a run.
func New(identity string, mode config.RunMode, parallelism int, jobs []job.Job) Descriptor {
	return Descriptor{
		SchemaVersion: SchemaVersion,
		Identity:      identity,
		Mode:          mode.String(),
		Parallelism:   parallelism,
		Jobs:          jobs,
	}
}

// RunMode decodes the descriptor's mode.
func (d Descriptor) RunMode() (config.RunMode, error) {
	switch d.Mode {
	case config.BuildAndRun.String():
		return config.BuildAndRun, nil
	case config.BuildOnly.String():
		return config.BuildOnly, nil
	}
	return 0, fmt.Errorf("unknown mode %q", d.Mode)
}

// FileName returns the descriptor file name for a DUT identity.
func FileName(identity string) string {
	return "Jobs." + identity + ".yaml"
}

// Path returns the descriptor path inside workDir.
func Path(workDir, identity string) string {
	return filepath.Join(workDir, FileName(identity))
}

// Marshal renders d as YAML.
func Marshal(d Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write removes any stale descriptor at path and writes d there atomically.
// path must lie inside workDir.
func Write(path, workDir string, d Descriptor) error {
	details := map[string]string{"path": path, "work_dir": workDir}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return errors.WrapWithDetails(errors.EDescriptorFailed, "failed to create work dir", err, details)
	}
	if err := fs.RemoveUnder(path, workDir); err != nil {
		return errors.WrapWithDetails(errors.EDescriptorFailed, "failed to remove stale descriptor", err, details)
	}

	data, err := Marshal(d)
	if err != nil {
		return errors.WrapWithDetails(errors.EDescriptorFailed, "failed to encode descriptor", err, details)
	}
	if err := fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EDescriptorFailed, "failed to write descriptor", err, details)
	}
	return nil
}

// Read loads and validates a descriptor.
func Read(filesystem fs.FS, path string) (Descriptor, error) {
	details := map[string]string{"path": path}

	data, err := filesystem.ReadFile(path)
	if err != nil {
		return Descriptor{}, errors.WrapWithDetails(errors.EDescriptorFailed, "failed to read descriptor", err, details)
	}

	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, errors.WrapWithDetails(errors.EDescriptorFailed, "invalid descriptor: "+err.Error(), err, details)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, errors.WrapWithDetails(errors.EDescriptorFailed, "invalid descriptor: "+err.Error(), err, details)
	}
	return d, nil
}

// Validate checks schema, mode, parallelism and every job; job ids, test
// names and work dirs must be unique.
func (d Descriptor) Validate() error {
	if d.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %q, got %q", SchemaVersion, d.SchemaVersion)
	}
	if _, err := d.RunMode(); err != nil {
		return err
	}
	if d.Parallelism < 1 || d.Parallelism > config.MaxParallelism {
		return fmt.Errorf("parallelism must be between 1 and %d, got %d", config.MaxParallelism, d.Parallelism)
	}
	ids := make(map[string]bool, len(d.Jobs))
	tests := make(map[string]bool, len(d.Jobs))
	dirs := make(map[string]string, len(d.Jobs))
	for _, j := range d.Jobs {
		if err := j.Validate(); err != nil {
			return err
		}
		if ids[j.ID] {
			return fmt.Errorf("duplicate job id %s", j.ID)
		}
		if tests[j.Test] {
			return fmt.Errorf("duplicate test %s", j.Test)
		}
		dir := filepath.Clean(j.WorkDir)
		if other, ok := dirs[dir]; ok {
			return fmt.Errorf("tests %s and %s share work_dir %s", other, j.Test, dir)
		}
		ids[j.ID] = true
		tests[j.Test] = true
		dirs[dir] = j.Test
	}
	return nil
}
