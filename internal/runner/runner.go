// Package runner executes jobs with bounded parallelism.
//
// Every job is attempted exactly once. A failing job is recorded against
// itself and never stops its siblings; Run returns only after every job has
// reached a terminal state.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/events"
	"github.com/NielsdaWheelz/archtest/internal/exec"
	"github.com/NielsdaWheelz/archtest/internal/job"
	"github.com/NielsdaWheelz/archtest/internal/signature"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// State is a job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Outcome tells the caller what may follow the run.
type Outcome string

const (
	// OutcomeCompleted means signatures were produced and may be validated.
	OutcomeCompleted Outcome = "completed"
	// OutcomeBuildOnly means nothing was simulated; no validation may follow.
	OutcomeBuildOnly Outcome = "build_only"
)

// WindowResolver resolves a compiled job's signature window.
type WindowResolver interface {
	Resolve(ctx context.Context, start, end toolchain.Query, dir string) (signature.Window, error)
}

// Options configures Run.
type Options struct {
	// RunID identifies the run in events and reports. Generated if empty.
	RunID string

	// Parallelism is the maximum number of jobs running at once. Zero means 1.
	Parallelism int

	Mode config.RunMode

	// StepTimeout bounds each external invocation. Zero disables it.
	StepTimeout time.Duration

	Runner   exec.CommandRunner
	Resolver WindowResolver // defaults to signature.NewResolver(Runner)

	// Env is the environment of every step. Nil inherits the parent's.
	Env []string

	Events events.Sink

	// Identity is the DUT identity; it names the per-job log.
	Identity string

	// LogName is the per-job log file name inside the job's work dir.
	// Defaults to "<Identity>.log".
	LogName string

	// Progress receives one line per finished job. May be nil.
	Progress io.Writer

	Logger *slog.Logger
}

// JobResult is the terminal record of one job.
type JobResult struct {
	ID      string
	Test    string
	WorkDir string
	State   State

	// Code and Err are set for failed jobs. Step names the failing step.
	Code errors.Code
	Err  error
	Step job.StepKind

	Window    signature.Window
	Signature string // set when the simulate step ran and succeeded
	Log       string
	Duration  time.Duration
}

// Result is the aggregate outcome of a run, one JobResult per job in input order.
type Result struct {
	RunID    string
	Outcome  Outcome
	Jobs     []JobResult
	Duration time.Duration
}

// Failed returns the failed jobs in input order.
func (r *Result) Failed() []JobResult {
	var out []JobResult
	for _, j := range r.Jobs {
		if j.State == StateFailed {
			out = append(out, j)
		}
	}
	return out
}

// Fatal returns the first failed job whose error is not scoped to the job's
// steps, or nil. Such a failure means the run's environment is broken (the
// work dir or job log could not be written) rather than the test.
func (r *Result) Fatal() *JobResult {
	for i := range r.Jobs {
		j := &r.Jobs[i]
		if j.State == StateFailed && !errors.IsJobScoped(j.Code) {
			return j
		}
	}
	return nil
}

// Succeeded returns the number of succeeded jobs.
func (r *Result) Succeeded() int {
	n := 0
	for _, j := range r.Jobs {
		if j.State == StateSucceeded {
			n++
		}
	}
	return n
}

// DefaultLogName returns the per-job log name for a DUT identity.
func DefaultLogName(identity string) string {
	return identity + ".log"
}

type runner struct {
	opts     Options
	resolver WindowResolver
	logger   *slog.Logger
	events   events.Sink

	total      int
	progressMu sync.Mutex
	finished   int
}

// Run executes jobs with at most opts.Parallelism running at once. It
// returns an error only for invalid options; job failures are in the Result.
// Cancelling ctx fails the remaining jobs with E_CANCELLED.
func Run(ctx context.Context, jobs []job.Job, opts Options) (*Result, error) {
	if opts.Runner == nil {
		return nil, errors.New(errors.EInternal, "runner: no command runner")
	}
	if opts.Parallelism < 0 {
		return nil, errors.New(errors.EInternal, "runner: parallelism must not be negative")
	}
	if opts.Parallelism == 0 {
		opts.Parallelism = config.DefaultParallelism
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Identity == "" {
		opts.Identity = config.Identity(config.DefaultName)
	}
	if opts.LogName == "" {
		opts.LogName = DefaultLogName(opts.Identity)
	}

	r := &runner{
		opts:     opts,
		resolver: opts.Resolver,
		logger:   opts.Logger,
		events:   opts.Events,
		total:    len(jobs),
	}
	if r.resolver == nil {
		r.resolver = signature.NewResolver(opts.Runner)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.events == nil {
		r.events = events.Discard
	}

	result := &Result{
		RunID:   opts.RunID,
		Outcome: OutcomeCompleted,
		Jobs:    make([]JobResult, len(jobs)),
	}
	if opts.Mode == config.BuildOnly {
		result.Outcome = OutcomeBuildOnly
	}
	for i, j := range jobs {
		result.Jobs[i] = JobResult{ID: j.ID, Test: j.Test, WorkDir: j.WorkDir, State: StatePending}
	}

	r.events.Emit(events.RunStarted, events.RunStartedData(
		opts.Identity, opts.Mode.String(), len(jobs), opts.Parallelism))
	r.logger.Info("run started", "run_id", opts.RunID, "jobs", len(jobs), "parallelism", opts.Parallelism, "mode", opts.Mode.String())

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i := range jobs {
		g.Go(func() error {
			result.Jobs[i] = r.runJob(ctx, jobs[i])
			return nil
		})
	}
	_ = g.Wait()
	result.Duration = time.Since(start)

	failed := len(result.Failed())
	r.events.Emit(events.RunFinished, events.RunFinishedData(
		string(result.Outcome), result.Succeeded(), failed, result.Duration.Milliseconds()))
	r.logger.Info("run finished", "run_id", opts.RunID, "succeeded", result.Succeeded(), "failed", failed, "duration", result.Duration)

	return result, nil
}

func (r *runner) runJob(ctx context.Context, j job.Job) JobResult {
	res := JobResult{
		ID:      j.ID,
		Test:    j.Test,
		WorkDir: j.WorkDir,
		State:   StateRunning,
		Log:     filepath.Join(j.WorkDir, r.opts.LogName),
	}
	start := time.Now()
	r.events.Emit(events.JobStarted, events.JobStartedData(j.ID, j.Test))
	r.logger.Debug("job started", "job_id", j.ID, "test", j.Test)

	step, err := r.execute(ctx, j, &res)
	res.Duration = time.Since(start)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		res.Code = errors.GetCode(err)
		res.Step = step
		if res.Code == "" {
			res.Code = errors.EInternal
		}
		level := slog.LevelWarn
		if !errors.IsJobScoped(res.Code) {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "job failed", "job_id", j.ID, "test", j.Test, "step", string(step), "error_code", string(res.Code), "error", err)
	} else {
		res.State = StateSucceeded
		r.logger.Debug("job succeeded", "job_id", j.ID, "test", j.Test, "duration", res.Duration)
	}

	r.events.Emit(events.JobFinished, events.JobFinishedData(
		j.ID, j.Test, string(res.State), res.Duration.Milliseconds(), string(res.Code), string(res.Step)))
	r.progress(res)
	return res
}

// execute runs compile, resolve and simulate in order and returns the
// failing step with its error.
func (r *runner) execute(ctx context.Context, j job.Job, res *JobResult) (job.StepKind, error) {
	if err := ctx.Err(); err != nil {
		return job.StepCompile, r.cancelled(job.StepCompile, res.Log)
	}

	if err := os.MkdirAll(j.WorkDir, 0o755); err != nil {
		return job.StepCompile, errors.WrapWithDetails(errors.EPersistFailed, "failed to create work dir", err,
			map[string]string{"work_dir": j.WorkDir, "job_id": j.ID, "test": j.Test})
	}
	logFile, err := os.OpenFile(res.Log, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return job.StepCompile, errors.WrapWithDetails(errors.EPersistFailed, "failed to open job log", err,
			map[string]string{"path": res.Log, "job_id": j.ID, "test": j.Test})
	}
	defer func() { _ = logFile.Close() }()

	_, _ = fmt.Fprintf(logFile, "# archtest job log\n")
	_, _ = fmt.Fprintf(logFile, "# timestamp: %s\n", time.Now().UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(logFile, "# run_id: %s\n", r.opts.RunID)
	_, _ = fmt.Fprintf(logFile, "# job: %s (%s)\n", j.ID, j.Test)
	_, _ = fmt.Fprintf(logFile, "# cwd: %s\n", j.WorkDir)
	_, _ = fmt.Fprintf(logFile, "# ---\n\n")

	compile, ok := j.Step(job.StepCompile)
	if !ok {
		return job.StepCompile, errors.New(errors.EInternal, "job has no compile step")
	}
	if err := r.runStep(ctx, logFile, j, compile, res.Log); err != nil {
		return job.StepCompile, err
	}

	startStep, _ := j.Step(job.StepSigStart)
	endStep, _ := j.Step(job.StepSigEnd)
	window, kind, err := r.resolve(ctx, logFile, j, startStep, endStep, res.Log)
	if err != nil {
		return kind, err
	}
	res.Window = window

	sim, ok := j.Step(job.StepSimulate)
	if !ok {
		return job.StepSimulate, errors.New(errors.EInternal, "job has no simulate step")
	}
	sim.Command = toolchain.BindWindow(sim.Command, window.Start, window.End)
	if err := r.runStep(ctx, logFile, j, sim, res.Log); err != nil {
		return job.StepSimulate, err
	}
	if !sim.Command.Inert {
		res.Signature = j.SignaturePath()
	}
	return "", nil
}

func (r *runner) runStep(ctx context.Context, w io.Writer, j job.Job, step job.Step, logPath string) error {
	_, _ = fmt.Fprintf(w, "# step: %s\n# command: %s\n", step.Kind, step.Command.String())
	if step.Command.Inert {
		_, _ = fmt.Fprintf(w, "NO RUN\n\n")
		return nil
	}

	stepCtx, cancel := r.stepContext(ctx)
	defer cancel()

	out, err := r.opts.Runner.Run(stepCtx, step.Command.Name, step.Command.Args, exec.RunOpts{Dir: j.WorkDir, Env: r.opts.Env})
	_, _ = io.WriteString(w, out.Stdout)
	_, _ = io.WriteString(w, out.Stderr)
	_, _ = fmt.Fprintf(w, "# exit: %d (%s)\n\n", out.ExitCode, out.Duration.Round(time.Millisecond))

	details := map[string]string{
		"job_id":  j.ID,
		"test":    j.Test,
		"step":    string(step.Kind),
		"command": step.Command.String(),
		"log":     logPath,
	}
	if err != nil {
		if ierr := r.interrupted(ctx, stepCtx, step.Kind, logPath); ierr != nil {
			return ierr
		}
		return errors.WrapWithDetails(errors.EJobExecution, fmt.Sprintf("%s step failed to start", step.Kind), err, details)
	}
	if out.ExitCode != 0 {
		details["exit_code"] = strconv.Itoa(out.ExitCode)
		if out.Signal != "" {
			details["signal"] = out.Signal
		}
		return errors.NewWithDetails(errors.EJobExecution, fmt.Sprintf("%s step exited with %d", step.Kind, out.ExitCode), details)
	}
	return nil
}

// resolve runs both symbol queries and returns the window with the step a
// failure belongs to: sig_end when the end symbol failed or the window is
// inverted, sig_start otherwise.
func (r *runner) resolve(ctx context.Context, w io.Writer, j job.Job, start, end job.Step, logPath string) (signature.Window, job.StepKind, error) {
	_, _ = fmt.Fprintf(w, "# step: %s\n# command: %s\n", job.StepSigStart, start.Command.String())
	_, _ = fmt.Fprintf(w, "# step: %s\n# command: %s\n", job.StepSigEnd, end.Command.String())

	stepCtx, cancel := r.stepContext(ctx)
	defer cancel()

	window, err := r.resolver.Resolve(stepCtx, start.Query(), end.Query(), j.WorkDir)
	if err == nil {
		_, _ = fmt.Fprintf(w, "# window: [%#x, %#x) %d bytes\n\n", window.Start, window.End, window.Size())
		return window, "", nil
	}

	kind := failedSymbolStep(err, end.Symbol)
	if ierr := r.interrupted(ctx, stepCtx, kind, logPath); ierr != nil {
		return signature.Window{}, kind, ierr
	}
	_, _ = fmt.Fprintf(w, "# error (%s): %v\n\n", kind, err)
	return signature.Window{}, kind, withDetails(err, map[string]string{
		"job_id": j.ID,
		"test":   j.Test,
		"step":   string(kind),
		"log":    logPath,
	})
}

// failedSymbolStep maps the resolver's symbol detail to a step kind. The
// inverted-window error names both symbols.
func failedSymbolStep(err error, endSymbol string) job.StepKind {
	ae, ok := errors.AsArchtestError(err)
	if !ok {
		return job.StepSigStart
	}
	symbol := ae.Details["symbol"]
	if symbol == endSymbol || strings.Contains(symbol, ",") {
		return job.StepSigEnd
	}
	return job.StepSigStart
}

func (r *runner) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.StepTimeout > 0 {
		return context.WithTimeout(ctx, r.opts.StepTimeout)
	}
	return context.WithCancel(ctx)
}

// interrupted classifies a step error caused by ctx or its step deadline.
// Returns nil if neither fired.
func (r *runner) interrupted(parent, stepCtx context.Context, kind job.StepKind, logPath string) error {
	if parent.Err() != nil {
		return r.cancelled(kind, logPath)
	}
	if stderrors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return errors.NewWithDetails(errors.EStepTimeout,
			fmt.Sprintf("%s step exceeded %s", kind, r.opts.StepTimeout),
			map[string]string{"step": string(kind), "log": logPath, "timed_out": "true"})
	}
	return nil
}

func (r *runner) cancelled(kind job.StepKind, logPath string) error {
	return errors.NewWithDetails(errors.ECancelled, "run cancelled",
		map[string]string{"step": string(kind), "log": logPath, "cancelled": "true"})
}

// withDetails returns err with extra details merged in, keeping existing keys.
func withDetails(err error, extra map[string]string) error {
	ae, ok := errors.AsArchtestError(err)
	if !ok {
		return err
	}
	merged := make(map[string]string, len(ae.Details)+len(extra))
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range ae.Details {
		merged[k] = v
	}
	return &errors.ArchtestError{Code: ae.Code, Msg: ae.Msg, Cause: ae.Cause, Details: merged}
}

func (r *runner) progress(res JobResult) {
	if r.opts.Progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.finished++

	status := "ok"
	if res.State == StateFailed {
		status = "FAIL " + string(res.Code)
	}
	_, _ = fmt.Fprintf(r.opts.Progress, "[%d/%d] %s %s (%s)\n",
		r.finished, r.total, res.Test, status, res.Duration.Round(time.Millisecond))
}
