package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/NielsdaWheelz/archtest/internal/errors"
)

// Env looks up environment variables. OSEnv is the production implementation.
type Env interface {
	Lookup(key string) (string, bool)
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnv is an Env over a fixed map.
type MapEnv map[string]string

func (m MapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Environment overrides.
const (
	EnvDUT         = "ARCHTEST_DUT"
	EnvJobs        = "ARCHTEST_JOBS"
	EnvTargetRun   = "ARCHTEST_TARGET_RUN"
	EnvStepTimeout = "ARCHTEST_STEP_TIMEOUT"
	EnvWorkDir     = "ARCHTEST_WORK_DIR"
)

func envString(env Env, key, def string) string {
	if v, ok := env.Lookup(key); ok {
		return v
	}
	return def
}

func envInt(env Env, key string, def int) (int, error) {
	if v, ok := env.Lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

func envBool(env Env, key string, def bool) (bool, error) {
	if v, ok := env.Lookup(key); ok {
		b, err := parseBoolish(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func envDuration(env Env, key string, def time.Duration) (time.Duration, error) {
	if v, ok := env.Lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func applyEnv(cfg *Config, env Env, base string) error {
	if env == nil {
		return nil
	}
	invalid := func(key string, err error) error {
		return errors.WrapWithDetails(errors.EInvalidConfig, err.Error(), err, map[string]string{"field": key})
	}

	if v := envString(env, EnvDUT, ""); v != "" {
		cfg.DUTPath = absFrom(base, v)
	}
	if v := envString(env, EnvWorkDir, ""); v != "" {
		cfg.WorkDir = absFrom(base, v)
	}

	jobs, err := envInt(env, EnvJobs, cfg.Parallelism)
	if err != nil {
		return invalid(EnvJobs, err)
	}
	cfg.Parallelism = jobs

	run, err := envBool(env, EnvTargetRun, cfg.Mode == BuildAndRun)
	if err != nil {
		return invalid(EnvTargetRun, err)
	}
	if run {
		cfg.Mode = BuildAndRun
	} else {
		cfg.Mode = BuildOnly
	}

	timeout, err := envDuration(env, EnvStepTimeout, cfg.StepTimeout)
	if err != nil {
		return invalid(EnvStepTimeout, err)
	}
	cfg.StepTimeout = timeout
	return nil
}
