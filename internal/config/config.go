// Package config handles loading and validation of the archtest plugin
// configuration (config.yaml).
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

// Defaults.
const (
	DefaultParallelism = 1
	DefaultName        = "DUT-kian-"
	DefaultDUTBinary   = "a.out"
	DefaultToolPrefix  = "riscv{xlen}-unknown-elf-"
	DefaultFileName    = "config.yaml"

	MaxParallelism = 1024
)

// RunMode selects whether the simulate step really runs.
type RunMode int

const (
	// BuildAndRun compiles every test and executes it on the DUT.
	BuildAndRun RunMode = iota
	// BuildOnly compiles every test; the simulate step is a no-op and no
	// result validation may follow.
	BuildOnly
)

func (m RunMode) String() string {
	if m == BuildOnly {
		return "build-only"
	}
	return "build-and-run"
}

// Config is the parsed and validated plugin configuration.
// All paths are absolute after Load.
type Config struct {
	// Name is the plugin name as handed over by the host framework. The DUT
	// identity is Name without its final character.
	Name string

	// DUTPath is the DUT/simulator executable.
	DUTPath string

	// Parallelism is the maximum number of jobs running at once.
	Parallelism int

	// PluginPath holds env/link.ld and the plugin include directory.
	PluginPath string

	ISASpecPath      string
	PlatformSpecPath string

	// SuiteEnv is the architecture test suite's env include directory.
	SuiteEnv string

	// WorkDir receives the build descriptor, events and report.
	WorkDir string

	// ToolPrefix is the toolchain binary prefix; "{xlen}" is substituted.
	ToolPrefix string

	Mode RunMode

	// StepTimeout bounds each external invocation of a job. Zero disables it.
	StepTimeout time.Duration
}

// Identity returns the DUT identity used to name signature, log and
// descriptor files.
func (c Config) Identity() string {
	return Identity(c.Name)
}

// Identity derives the DUT identity from a plugin name by trimming its final
// character.
func Identity(name string) string {
	if name == "" {
		return ""
	}
	r := []rune(name)
	return string(r[:len(r)-1])
}

// LinkerScript returns the plugin's linker script path.
func (c Config) LinkerScript() string {
	return filepath.Join(c.PluginPath, "env", "link.ld")
}

// PluginEnv returns the plugin's include directory.
func (c Config) PluginEnv() string {
	return filepath.Join(c.PluginPath, "env")
}

// fileConfig mirrors config.yaml. Unknown keys are rejected.
type fileConfig struct {
	Name        string    `yaml:"name"`
	DUT         string    `yaml:"dut"`
	Path        string    `yaml:"path"`
	Jobs        *int      `yaml:"jobs"`
	PluginPath  string    `yaml:"pluginpath"`
	ISpec       string    `yaml:"ispec"`
	PSpec       string    `yaml:"pspec"`
	SuiteEnv    string    `yaml:"suite_env"`
	WorkDir     string    `yaml:"work_dir"`
	ToolPrefix  string    `yaml:"toolchain_prefix"`
	TargetRun   targetRun `yaml:"target_run"`
	StepTimeout string    `yaml:"step_timeout"`
}

// targetRun accepts the historical "0"/"1" strings as well as YAML booleans.
type targetRun struct {
	set   bool
	value bool
}

func (t *targetRun) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: target_run must be a scalar", node.Line)
	}
	v, err := parseBoolish(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: target_run: %w", node.Line, err)
	}
	t.set = true
	t.value = v
	return nil
}

func parseBoolish(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// Load reads config.yaml at path, applies ARCHTEST_* environment overrides
// and returns the configuration without semantic validation.
// Returns E_NO_CONFIG if the file does not exist and E_INVALID_CONFIG if it
// cannot be decoded.
func Load(filesystem fs.FS, path string, env Env) (Config, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.NewWithDetails(errors.ENoConfig, "config file not found", map[string]string{"path": path})
		}
		return Config{}, errors.WrapWithDetails(errors.ENoConfig, "failed to read config file", err, map[string]string{"path": path})
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return Config{}, errors.WrapWithDetails(errors.EInvalidConfig, "invalid yaml: "+err.Error(), err, map[string]string{"path": path})
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, errors.Wrap(errors.EInternal, "failed to resolve config directory", err)
	}

	cfg := Config{
		Name:             fc.Name,
		Parallelism:      DefaultParallelism,
		PluginPath:       absFrom(base, fc.PluginPath),
		ISASpecPath:      absFrom(base, fc.ISpec),
		PlatformSpecPath: absFrom(base, fc.PSpec),
		SuiteEnv:         absFrom(base, fc.SuiteEnv),
		WorkDir:          absFrom(base, fc.WorkDir),
		ToolPrefix:       fc.ToolPrefix,
		Mode:             BuildAndRun,
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.ToolPrefix == "" {
		cfg.ToolPrefix = DefaultToolPrefix
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = base
	}

	switch {
	case fc.DUT != "":
		cfg.DUTPath = absFrom(base, fc.DUT)
	case fc.Path != "":
		cfg.DUTPath = filepath.Join(absFrom(base, fc.Path), DefaultDUTBinary)
	}

	if fc.Jobs != nil {
		cfg.Parallelism = *fc.Jobs
	}
	if fc.TargetRun.set && !fc.TargetRun.value {
		cfg.Mode = BuildOnly
	}
	if fc.StepTimeout != "" {
		d, err := time.ParseDuration(fc.StepTimeout)
		if err != nil {
			return Config{}, errors.NewWithDetails(errors.EInvalidConfig, "step_timeout must be a duration (e.g. \"10m\")", map[string]string{"path": path, "field": "step_timeout"})
		}
		cfg.StepTimeout = d
	}

	if err := applyEnv(&cfg, env, base); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadAndValidate loads config.yaml and validates it.
func LoadAndValidate(filesystem fs.FS, path string, env Env) (Config, error) {
	cfg, err := Load(filesystem, path, env)
	if err != nil {
		return Config{}, err
	}
	return Validate(filesystem, cfg)
}

func absFrom(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
