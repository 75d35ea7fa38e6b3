// Package testutil holds shared helpers for archtest's package tests.
package testutil

import (
	"fmt"
	"os"
	"strings"
)

// EnvPrefix is the prefix of every archtest environment override.
const EnvPrefix = "ARCHTEST_"

// UnsetArchtestEnv clears ARCHTEST_* variables that would override the
// configuration under test.
func UnsetArchtestEnv() error {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if err := os.Unsetenv(name); err != nil {
			return fmt.Errorf("unset %s: %w", name, err)
		}
	}
	return nil
}
