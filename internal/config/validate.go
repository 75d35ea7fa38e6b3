package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

// Validate checks the semantic rules of a loaded configuration.
// Returns E_INVALID_CONFIG naming the offending field.
func Validate(filesystem fs.FS, cfg Config) (Config, error) {
	invalid := func(field, msg string) error {
		return errors.NewWithDetails(errors.EInvalidConfig, fmt.Sprintf("%s: %s", field, msg), map[string]string{"field": field})
	}

	if len([]rune(cfg.Name)) < 2 {
		return cfg, invalid("name", "must be at least 2 characters (the final character is trimmed to form the DUT identity)")
	}
	if containsWhitespace(cfg.Name) || strings.ContainsRune(cfg.Name, os.PathSeparator) {
		return cfg, invalid("name", "must not contain whitespace or path separators")
	}

	if cfg.Parallelism < 1 || cfg.Parallelism > MaxParallelism {
		return cfg, invalid("jobs", fmt.Sprintf("must be between 1 and %d", MaxParallelism))
	}
	if cfg.StepTimeout < 0 {
		return cfg, invalid("step_timeout", "must not be negative")
	}
	if containsWhitespace(cfg.ToolPrefix) {
		return cfg, invalid("toolchain_prefix", "must not contain whitespace")
	}

	required := []struct {
		field string
		path  string
		dir   bool
	}{
		{"pluginpath", cfg.PluginPath, true},
		{"ispec", cfg.ISASpecPath, false},
		{"pspec", cfg.PlatformSpecPath, false},
	}
	for _, r := range required {
		if r.path == "" {
			return cfg, invalid(r.field, "is required")
		}
		if err := checkPath(filesystem, r.path, r.dir); err != nil {
			return cfg, errors.WrapWithDetails(errors.EInvalidConfig, fmt.Sprintf("%s: %v", r.field, err), err,
				map[string]string{"field": r.field, "path": r.path})
		}
	}
	if cfg.SuiteEnv != "" {
		if err := checkPath(filesystem, cfg.SuiteEnv, true); err != nil {
			return cfg, errors.WrapWithDetails(errors.EInvalidConfig, fmt.Sprintf("suite_env: %v", err), err,
				map[string]string{"field": "suite_env", "path": cfg.SuiteEnv})
		}
	}

	if cfg.Mode == BuildAndRun && cfg.DUTPath == "" {
		return cfg, errors.NewWithDetails(errors.EInvalidConfig, "dut: is required unless target_run is 0",
			map[string]string{"field": "dut", "hint": "set dut (or path) in config.yaml, or target_run: 0 for a build-only run"})
	}

	return cfg, nil
}

func checkPath(filesystem fs.FS, path string, wantDir bool) error {
	info, err := filesystem.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", path)
		}
		return err
	}
	if wantDir && !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if !wantDir && info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// containsWhitespace returns true if s contains any whitespace character.
func containsWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
