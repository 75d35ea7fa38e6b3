package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/descriptor"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/isa"
	"github.com/NielsdaWheelz/archtest/internal/job"
	"github.com/NielsdaWheelz/archtest/internal/testlist"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// BuildOpts holds options for the build command.
type BuildOpts struct {
	// ConfigPath is the plugin config.yaml.
	ConfigPath string

	// TestListPath is the test list produced by suite discovery.
	TestListPath string

	// Jobs overrides the configured parallelism when > 0.
	Jobs int

	// BuildOnly forces a build-only run regardless of target_run.
	BuildOnly bool

	// StepTimeout overrides the configured step timeout when > 0.
	StepTimeout time.Duration
}

// BuildOutput is the job set of a run and where it was written.
type BuildOutput struct {
	Config         config.Config
	ISA            isa.Config
	Jobs           []job.Job
	DescriptorPath string
}

// Build implements the `archtest build` command: it resolves the ISA,
// renders one job per test and writes the build descriptor. No job runs.
func Build(ctx context.Context, deps Deps, opts BuildOpts) (*BuildOutput, error) {
	out, err := build(ctx, deps, opts)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(deps.Stdout, "arch: %s\n", out.ISA.Arch())
	_, _ = fmt.Fprintf(deps.Stdout, "abi: %s\n", out.ISA.ABI)
	_, _ = fmt.Fprintf(deps.Stdout, "mode: %s\n", out.Config.Mode)
	_, _ = fmt.Fprintf(deps.Stdout, "jobs: %d\n", len(out.Jobs))
	_, _ = fmt.Fprintf(deps.Stdout, "descriptor: %s\n", out.DescriptorPath)
	return out, nil
}

func build(ctx context.Context, deps Deps, opts BuildOpts) (*BuildOutput, error) {
	log := deps.logger()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ECancelled, "cancelled before build", err)
	}

	cfg, err := loadConfig(deps, opts)
	if err != nil {
		return nil, err
	}

	spec, err := isa.LoadSpec(deps.FS, cfg.ISASpecPath)
	if err != nil {
		return nil, err
	}
	isaCfg, err := isa.Resolve(spec.Hart0)
	if err != nil {
		return nil, err
	}
	log.Debug("isa resolved", "arch", isaCfg.Arch(), "abi", isaCfg.ABI, "xlen", isaCfg.XLEN)

	list, err := testlist.Load(deps.FS, opts.TestListPath)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.NewWithDetails(errors.ENoJobs, "test list contains no tests", map[string]string{"path": opts.TestListPath})
	}

	b := &job.Builder{
		Templates: toolchain.New(cfg, isaCfg),
		ISA:       isaCfg,
		Identity:  cfg.Identity(),
		FS:        deps.FS,
	}
	jobs, err := b.BuildAll(list)
	if err != nil {
		return nil, buildError(deps, err)
	}

	path := descriptor.Path(cfg.WorkDir, cfg.Identity())
	d := descriptor.New(cfg.Identity(), cfg.Mode, cfg.Parallelism, jobs)
	if err := descriptor.Write(path, cfg.WorkDir, d); err != nil {
		return nil, err
	}
	log.Info("descriptor written", "descriptor", path, "jobs", len(jobs), "mode", cfg.Mode.String())

	return &BuildOutput{Config: cfg, ISA: isaCfg, Jobs: jobs, DescriptorPath: path}, nil
}

// loadConfig loads config.yaml, applies command-line overrides and validates
// the result.
func loadConfig(deps Deps, opts BuildOpts) (config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Config{}, errors.New(errors.EUsage, "--config is required")
	}
	if opts.TestListPath == "" {
		return config.Config{}, errors.New(errors.EUsage, "--testlist is required")
	}

	cfg, err := config.Load(deps.FS, opts.ConfigPath, deps.env())
	if err != nil {
		return config.Config{}, err
	}
	if opts.Jobs > 0 {
		cfg.Parallelism = opts.Jobs
	}
	if opts.BuildOnly {
		cfg.Mode = config.BuildOnly
	}
	if opts.StepTimeout > 0 {
		cfg.StepTimeout = opts.StepTimeout
	}
	return config.Validate(deps.FS, cfg)
}

// buildError reports every test that could not be built and returns a
// single E_TEMPLATE error naming them.
func buildError(deps Deps, err error) error {
	be, ok := err.(*job.BuildErrors)
	if !ok {
		return err
	}
	for _, te := range *be {
		_, _ = fmt.Fprintf(deps.Stderr, "%s: %v\n", te.Test, te.Err)
	}
	tests := be.Tests()
	msg := fmt.Sprintf("%d of the listed tests could not be built; no job was started", len(tests))
	if len(tests) == 1 {
		msg = (*be)[0].Err.Error()
		if ae, ok := errors.AsArchtestError((*be)[0].Err); ok {
			msg = ae.Msg
		}
	}
	return errors.WrapWithDetails(errors.ETemplate, msg, err, map[string]string{
		"failed": strings.Join(tests, ","),
	})
}
