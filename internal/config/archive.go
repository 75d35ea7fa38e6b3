package config

import (
	"errors"
	"fmt"
	"strings"

	archerrors "github.com/NielsdaWheelz/archtest/internal/errors"
)

// Object store environment variables. Archiving is enabled iff the endpoint is set.
const (
	EnvArchiveEndpoint  = "ARCHTEST_ARCHIVE_ENDPOINT"
	EnvArchiveAccessKey = "ARCHTEST_ARCHIVE_ACCESS_KEY"
	EnvArchiveSecretKey = "ARCHTEST_ARCHIVE_SECRET_KEY"
	EnvArchiveRegion    = "ARCHTEST_ARCHIVE_REGION"
	EnvArchiveBucket    = "ARCHTEST_ARCHIVE_BUCKET"
	EnvArchiveUseSSL    = "ARCHTEST_ARCHIVE_USE_SSL"
)

// ArchiveConfig holds the S3-compatible object store settings used to
// upload signatures after a run.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an endpoint was configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// ArchiveConfigFromEnv reads the object store settings. A zero config
// (archiving disabled) is returned when no endpoint is set.
func ArchiveConfigFromEnv(env Env) (ArchiveConfig, error) {
	useSSL, err := envBool(env, EnvArchiveUseSSL, true)
	if err != nil {
		return ArchiveConfig{}, archerrors.WrapWithDetails(archerrors.EInvalidConfig, err.Error(), err, map[string]string{"field": EnvArchiveUseSSL})
	}
	cfg := ArchiveConfig{
		Endpoint:  envString(env, EnvArchiveEndpoint, ""),
		AccessKey: envString(env, EnvArchiveAccessKey, ""),
		SecretKey: envString(env, EnvArchiveSecretKey, ""),
		Region:    envString(env, EnvArchiveRegion, "us-east-1"),
		Bucket:    envString(env, EnvArchiveBucket, "signatures"),
		UseSSL:    useSSL,
	}
	if !cfg.Enabled() {
		return ArchiveConfig{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return ArchiveConfig{}, archerrors.WrapWithDetails(archerrors.EInvalidConfig, "archive: "+err.Error(), err,
			map[string]string{"endpoint": cfg.Endpoint, "bucket": cfg.Bucket})
	}
	return cfg, nil
}

// Validate checks that every field needed to reach the bucket is present.
func (c ArchiveConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}
