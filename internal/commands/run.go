package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NielsdaWheelz/archtest/internal/archive"
	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/events"
	"github.com/NielsdaWheelz/archtest/internal/job"
	"github.com/NielsdaWheelz/archtest/internal/report"
	"github.com/NielsdaWheelz/archtest/internal/runner"
)

// BuildOnlyMessage is printed after a successful build-only run.
const BuildOnlyMessage = "build-only: no validation performed"

// RunOpts holds options for the run command.
type RunOpts struct {
	BuildOpts
}

// Run implements the `archtest run` command: build every job, run them
// with bounded parallelism, then write the report and archive signatures.
func Run(ctx context.Context, deps Deps, opts RunOpts) error {
	out, err := build(ctx, deps, opts.BuildOpts)
	if err != nil {
		return err
	}
	return orchestrate(ctx, deps, plan{
		Identity:       out.Config.Identity(),
		Mode:           out.Config.Mode,
		Parallelism:    out.Config.Parallelism,
		StepTimeout:    out.Config.StepTimeout,
		WorkDir:        out.Config.WorkDir,
		DescriptorPath: out.DescriptorPath,
		Jobs:           out.Jobs,
	})
}

// plan is everything orchestrate needs, whether it came from a fresh build
// or from a descriptor on disk.
type plan struct {
	Identity       string
	Mode           config.RunMode
	Parallelism    int
	StepTimeout    time.Duration
	WorkDir        string
	DescriptorPath string
	Jobs           []job.Job
}

func orchestrate(ctx context.Context, deps Deps, p plan) error {
	log := deps.logger()

	archiveCfg, err := config.ArchiveConfigFromEnv(deps.env())
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	evLog := events.NewLog(filepath.Join(p.WorkDir, events.FileName), runID)

	result, err := runner.Run(ctx, p.Jobs, runner.Options{
		RunID:       runID,
		Parallelism: p.Parallelism,
		Mode:        p.Mode,
		StepTimeout: p.StepTimeout,
		Runner:      deps.CR,
		Events:      evLog,
		Identity:    p.Identity,
		Progress:    deps.Progress,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	rep := report.FromResult(result, p.Identity, p.Mode.String(), deps.FS)
	reportPath := report.Path(p.WorkDir)
	if err := report.Write(reportPath, rep); err != nil {
		return err
	}
	if err := report.WriteHuman(deps.Stdout, rep); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}

	failed := rep.FailedJobs()
	failedErr := jobsFailedError(failed, reportPath, p.DescriptorPath)

	if ctx.Err() != nil {
		return errors.NewWithDetails(errors.ECancelled, "run interrupted; remaining jobs were cancelled",
			map[string]string{"report": reportPath, "descriptor": p.DescriptorPath})
	}

	if fatal := result.Fatal(); fatal != nil {
		return fatalJobError(*fatal, reportPath, p.DescriptorPath)
	}

	if result.Outcome == runner.OutcomeBuildOnly {
		if failedErr != nil {
			return failedErr
		}
		_, _ = fmt.Fprintln(deps.Stdout, BuildOnlyMessage)
		return nil
	}

	var archiveErr error
	if archiveCfg.Enabled() {
		archiveErr = archiveRun(ctx, deps, archiveCfg, runID, p.Identity, reportPath, rep)
	}

	if failedErr != nil {
		if archiveErr != nil {
			log.Warn("archive failed", "error", archiveErr)
		}
		return failedErr
	}
	return archiveErr
}

func archiveRun(ctx context.Context, deps Deps, cfg config.ArchiveConfig, runID, identity, reportPath string, rep report.Report) error {
	store, err := deps.openStore(cfg)
	if err != nil {
		return errors.WrapWithDetails(errors.EArchiveFailed, "failed to open archive store", err,
			map[string]string{"endpoint": cfg.Endpoint, "bucket": cfg.Bucket})
	}
	res := archive.Archive(ctx, archive.Config{
		Bucket:     cfg.Bucket,
		RunID:      runID,
		Identity:   identity,
		ReportPath: reportPath,
	}, store, rep)
	deps.logger().Info("archive finished", "bucket", cfg.Bucket, "uploaded", len(res.Uploaded), "failed", len(res.Failures))
	return res.ToError(cfg.Bucket)
}

// fatalJobError reports a job archtest could not carry out, keeping the
// job's own error code.
func fatalJobError(j runner.JobResult, reportPath, descriptorPath string) error {
	details := map[string]string{
		"test":       j.Test,
		"job_id":     j.ID,
		"report":     reportPath,
		"descriptor": descriptorPath,
	}
	if ae, ok := errors.AsArchtestError(j.Err); ok {
		for k, v := range ae.Details {
			if _, set := details[k]; !set {
				details[k] = v
			}
		}
	}
	return errors.WrapWithDetails(j.Code,
		fmt.Sprintf("job %s (%s) could not be run: %v", j.ID, j.Test, j.Err), j.Err, details)
}

// jobsFailedError returns E_JOBS_FAILED naming every failed test, or nil.
func jobsFailedError(failed []report.Job, reportPath, descriptorPath string) error {
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, j := range failed {
		names[i] = j.Test + "(" + j.ErrorCode + ")"
	}
	details := map[string]string{
		"failed":     strings.Join(names, ","),
		"report":     reportPath,
		"descriptor": descriptorPath,
	}
	if len(failed) == 1 {
		details["log"] = failed[0].Log
	}
	return errors.NewWithDetails(errors.EJobsFailed,
		fmt.Sprintf("%d of the run's jobs failed", len(failed)), details)
}
