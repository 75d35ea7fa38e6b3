package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/isa"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
	"github.com/NielsdaWheelz/archtest/internal/version"
)

// DoctorReport holds all the data for doctor output.
type DoctorReport struct {
	// Config resolution
	ConfigPath   string
	Identity     string
	Mode         string
	Parallelism  int
	StepTimeout  string
	WorkDir      string
	PluginPath   string
	LinkerScript string
	ISASpec      string
	PlatformSpec string
	SuiteEnv     string

	// ISA
	Arch string
	ABI  string
	XLEN int

	// Tooling
	Compiler string
	NM       string
	DUT      string

	// Archive
	ArchiveEnabled  bool
	ArchiveEndpoint string
	ArchiveBucket   string

	Version   string
	GoVersion string
}

// DoctorOpts holds options for the doctor command.
type DoctorOpts struct {
	ConfigPath string
}

// Doctor implements the `archtest doctor` command.
// Validates config and ISA spec, and checks that the toolchain and DUT are
// resolvable.
func Doctor(ctx context.Context, deps Deps, opts DoctorOpts) error {
	if opts.ConfigPath == "" {
		return errors.New(errors.EUsage, "--config is required")
	}

	cfg, err := config.LoadAndValidate(deps.FS, opts.ConfigPath, deps.env())
	if err != nil {
		return err
	}

	spec, err := isa.LoadSpec(deps.FS, cfg.ISASpecPath)
	if err != nil {
		return err
	}
	isaCfg, err := isa.Resolve(spec.Hart0)
	if err != nil {
		return err
	}

	tpl := toolchain.New(cfg, isaCfg)
	compiler, err := checkTool(deps, tpl.Tool(isaCfg.XLEN, "gcc"))
	if err != nil {
		return err
	}
	nm, err := checkTool(deps, tpl.Tool(isaCfg.XLEN, "nm"))
	if err != nil {
		return err
	}

	dut := "(build-only)"
	if cfg.Mode == config.BuildAndRun {
		if dut, err = checkTool(deps, cfg.DUTPath); err != nil {
			return err
		}
	}

	archiveCfg, err := config.ArchiveConfigFromEnv(deps.env())
	if err != nil {
		return err
	}

	stepTimeout := "none"
	if cfg.StepTimeout > 0 {
		stepTimeout = cfg.StepTimeout.String()
	}

	writeDoctorOutput(deps.Stdout, DoctorReport{
		ConfigPath:      opts.ConfigPath,
		Identity:        cfg.Identity(),
		Mode:            cfg.Mode.String(),
		Parallelism:     cfg.Parallelism,
		StepTimeout:     stepTimeout,
		WorkDir:         cfg.WorkDir,
		PluginPath:      cfg.PluginPath,
		LinkerScript:    cfg.LinkerScript(),
		ISASpec:         cfg.ISASpecPath,
		PlatformSpec:    cfg.PlatformSpecPath,
		SuiteEnv:        cfg.SuiteEnv,
		Arch:            isaCfg.Arch(),
		ABI:             isaCfg.ABI,
		XLEN:            isaCfg.XLEN,
		Compiler:        compiler,
		NM:              nm,
		DUT:             dut,
		ArchiveEnabled:  archiveCfg.Enabled(),
		ArchiveEndpoint: archiveCfg.Endpoint,
		ArchiveBucket:   archiveCfg.Bucket,
		Version:         version.FullVersion(),
		GoVersion:       version.GoVersion(),
	})
	return nil
}

// checkTool resolves name on PATH (or as a path) and returns its location.
func checkTool(deps Deps, name string) (string, error) {
	path, err := deps.CR.LookPath(name)
	if err != nil {
		return "", errors.WrapWithDetails(errors.EToolNotFound,
			fmt.Sprintf("%s is not installed or not executable", name), err,
			map[string]string{"command": name, "hint": "install the toolchain or set toolchain_prefix / dut in config.yaml"})
	}
	return path, nil
}

// writeDoctorOutput writes the stable key: value output.
// All writes use explicit error ignoring since this is informational output
// where write failures cannot be meaningfully handled.
func writeDoctorOutput(w io.Writer, r DoctorReport) {
	_, _ = fmt.Fprintf(w, "config_path: %s\n", r.ConfigPath)
	_, _ = fmt.Fprintf(w, "identity: %s\n", r.Identity)
	_, _ = fmt.Fprintf(w, "mode: %s\n", r.Mode)
	_, _ = fmt.Fprintf(w, "jobs: %d\n", r.Parallelism)
	_, _ = fmt.Fprintf(w, "step_timeout: %s\n", r.StepTimeout)
	_, _ = fmt.Fprintf(w, "work_dir: %s\n", r.WorkDir)
	_, _ = fmt.Fprintf(w, "pluginpath: %s\n", r.PluginPath)
	_, _ = fmt.Fprintf(w, "linker_script: %s\n", r.LinkerScript)
	_, _ = fmt.Fprintf(w, "ispec: %s\n", r.ISASpec)
	_, _ = fmt.Fprintf(w, "pspec: %s\n", r.PlatformSpec)
	_, _ = fmt.Fprintf(w, "suite_env: %s\n", r.SuiteEnv)

	_, _ = fmt.Fprintf(w, "arch: %s\n", r.Arch)
	_, _ = fmt.Fprintf(w, "abi: %s\n", r.ABI)
	_, _ = fmt.Fprintf(w, "xlen: %d\n", r.XLEN)

	_, _ = fmt.Fprintf(w, "compiler: %s\n", r.Compiler)
	_, _ = fmt.Fprintf(w, "nm: %s\n", r.NM)
	_, _ = fmt.Fprintf(w, "dut: %s\n", r.DUT)

	_, _ = fmt.Fprintf(w, "archive_enabled: %s\n", boolStr(r.ArchiveEnabled))
	if r.ArchiveEnabled {
		_, _ = fmt.Fprintf(w, "archive_endpoint: %s\n", r.ArchiveEndpoint)
		_, _ = fmt.Fprintf(w, "archive_bucket: %s\n", r.ArchiveBucket)
	}

	_, _ = fmt.Fprintf(w, "archtest_version: %s\n", r.Version)
	_, _ = fmt.Fprintf(w, "go_version: %s\n", r.GoVersion)

	_, _ = fmt.Fprintln(w, "status: ok")
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
