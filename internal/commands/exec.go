package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/descriptor"
	"github.com/NielsdaWheelz/archtest/internal/errors"
)

// ExecOpts holds options for the exec command.
type ExecOpts struct {
	// DescriptorPath is a build descriptor written by `archtest build`.
	DescriptorPath string

	// Jobs overrides the descriptor's parallelism when > 0.
	Jobs int

	// StepTimeout bounds each external invocation. Zero disables it.
	StepTimeout time.Duration
}

// Exec implements the `archtest exec` command: run the jobs of an existing
// descriptor. Report and events are written next to the descriptor.
func Exec(ctx context.Context, deps Deps, opts ExecOpts) error {
	if opts.DescriptorPath == "" {
		return errors.New(errors.EUsage, "--descriptor is required")
	}
	if opts.Jobs > config.MaxParallelism {
		return errors.NewWithDetails(errors.EUsage, "--jobs is too large", map[string]string{"field": "jobs"})
	}

	path, err := filepath.Abs(opts.DescriptorPath)
	if err != nil {
		return errors.Wrap(errors.EInternal, "failed to resolve descriptor path", err)
	}
	d, err := descriptor.Read(deps.FS, path)
	if err != nil {
		return err
	}
	mode, err := d.RunMode()
	if err != nil {
		return errors.WrapWithDetails(errors.EDescriptorFailed, err.Error(), err, map[string]string{"descriptor": path})
	}
	if len(d.Jobs) == 0 {
		return errors.NewWithDetails(errors.ENoJobs, "descriptor contains no jobs", map[string]string{"descriptor": path})
	}

	parallelism := d.Parallelism
	if opts.Jobs > 0 {
		parallelism = opts.Jobs
	}

	return orchestrate(ctx, deps, plan{
		Identity:       d.Identity,
		Mode:           mode,
		Parallelism:    parallelism,
		StepTimeout:    opts.StepTimeout,
		WorkDir:        filepath.Dir(path),
		DescriptorPath: path,
		Jobs:           d.Jobs,
	})
}
