package job

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/isa"
	"github.com/NielsdaWheelz/archtest/internal/testlist"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// Builder renders jobs for one run.
type Builder struct {
	Templates toolchain.Templates
	ISA       isa.Config

	// Identity names the signature file (<identity>.signature).
	Identity string

	FS fs.FS
}

// ID returns the job id for the n-th job of a run.
func ID(n int) string {
	return fmt.Sprintf("TARGET%d", n)
}

// Build renders the job for one entry. Errors are E_TEMPLATE with the test
// name in details.
func (b *Builder) Build(id string, e testlist.Entry) (Job, error) {
	fail := func(msg string, cause error) error {
		return errors.WrapWithDetails(errors.ETemplate, fmt.Sprintf("test %s: %s", e.Name, msg), cause,
			map[string]string{"test": e.Name, "job_id": id, "path": e.SourcePath, "work_dir": e.WorkDir})
	}

	if !filepath.IsAbs(e.WorkDir) {
		return Job{}, fail(fmt.Sprintf("work_dir %q is not absolute", e.WorkDir), nil)
	}
	if !filepath.IsAbs(e.SourcePath) {
		return Job{}, fail(fmt.Sprintf("test_path %q is not absolute", e.SourcePath), nil)
	}
	info, err := b.FS.Stat(e.SourcePath)
	if err != nil {
		return Job{}, fail("missing or unreadable source", err)
	}
	if !info.Mode().IsRegular() {
		return Job{}, fail("source is not a regular file", nil)
	}

	compile, err := b.Templates.Compile(strings.ToLower(e.ISA), b.ISA.XLEN, e.SourcePath, BinaryName, e.Macros)
	if err != nil {
		msg := err.Error()
		if ae, ok := errors.AsArchtestError(err); ok {
			msg = ae.Msg
		}
		return Job{}, fail(msg, err)
	}

	signature := b.Identity + ".signature"
	start := b.Templates.SymbolQuery(b.ISA.XLEN, BinaryName, toolchain.SymbolBegin)
	end := b.Templates.SymbolQuery(b.ISA.XLEN, BinaryName, toolchain.SymbolEnd)

	return Job{
		ID:        id,
		Test:      e.Name,
		WorkDir:   filepath.Clean(e.WorkDir),
		Signature: signature,
		Steps: []Step{
			{Kind: StepCompile, Command: compile},
			{Kind: StepSigStart, Command: start.Command, Symbol: start.Symbol},
			{Kind: StepSigEnd, Command: end.Command, Symbol: end.Symbol},
			{Kind: StepSimulate, Command: b.Templates.SimulateTemplate(signature, BinaryName)},
		},
	}, nil
}

// BuildAll renders one job per entry, in list order, with ids TARGET0..N-1.
// Every failing entry is collected; if any fails the returned error is a
// *BuildErrors and no jobs are returned.
func (b *Builder) BuildAll(list testlist.List) ([]Job, error) {
	jobs := make([]Job, 0, len(list))
	var failed BuildErrors
	for i, e := range list {
		j, err := b.Build(ID(i), e)
		if err != nil {
			failed = append(failed, TestError{Test: e.Name, Err: err})
			continue
		}
		jobs = append(jobs, j)
	}
	failed = append(failed, sharedWorkDirs(jobs)...)
	if len(failed) > 0 {
		return nil, &failed
	}
	return jobs, nil
}

// sharedWorkDirs returns an E_TEMPLATE error for every test whose work dir
// is also used by another test. Each job owns its work dir exclusively: the
// ELF, signature and log file names inside it are fixed.
func sharedWorkDirs(jobs []Job) BuildErrors {
	byDir := make(map[string][]string, len(jobs))
	var dirs []string
	for _, j := range jobs {
		if _, seen := byDir[j.WorkDir]; !seen {
			dirs = append(dirs, j.WorkDir)
		}
		byDir[j.WorkDir] = append(byDir[j.WorkDir], j.Test)
	}

	var failed BuildErrors
	for _, dir := range dirs {
		tests := byDir[dir]
		if len(tests) < 2 {
			continue
		}
		shared := strings.Join(tests, ",")
		for _, test := range tests {
			failed = append(failed, TestError{Test: test, Err: errors.NewWithDetails(errors.ETemplate,
				fmt.Sprintf("test %s: work_dir %s is shared by tests %s", test, dir, shared),
				map[string]string{"test": test, "work_dir": dir, "failed": shared})})
		}
	}
	return failed
}

// TestError attributes a build error to a test.
type TestError struct {
	Test string
	Err  error
}

// BuildErrors lists every test whose job could not be built.
type BuildErrors []TestError

func (b *BuildErrors) Error() string {
	if len(*b) == 1 {
		return (*b)[0].Err.Error()
	}
	return fmt.Sprintf("%d tests could not be built; first: %v", len(*b), (*b)[0].Err)
}

// Tests returns the names of the failed tests.
func (b *BuildErrors) Tests() []string {
	names := make([]string, len(*b))
	for i, te := range *b {
		names[i] = te.Test
	}
	return names
}
