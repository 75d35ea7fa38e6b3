// Package isa resolves the DUT's architecture string and ABI from its ISA spec.
package isa

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

// ABI names.
const (
	ABI32 = "ilp32"
	ABI64 = "lp64"
)

// CanonicalExtensions is the order extension letters are appended to the
// architecture string, independent of their order in the ISA spec.
var CanonicalExtensions = []rune{'I', 'M', 'A', 'F', 'D', 'C'}

// Spec is the subset of the ISA spec YAML the resolver reads.
type Spec struct {
	Hart0 HartSpec `yaml:"hart0"`
}

// HartSpec describes one hart.
type HartSpec struct {
	SupportedXLEN []int  `yaml:"supported_xlen"`
	ISA           string `yaml:"ISA"`
}

// Config is the resolved ISA configuration. Immutable once built.
type Config struct {
	XLEN       int
	Extensions []rune
	ABI        string
}

// Arch returns the architecture string passed to -march, e.g. "rv32imc".
func (c Config) Arch() string {
	var sb strings.Builder
	sb.WriteString("rv")
	sb.WriteString(strconv.Itoa(c.XLEN))
	for _, e := range c.Extensions {
		sb.WriteRune(e + ('a' - 'A'))
	}
	return sb.String()
}

// ParseSpec decodes an ISA spec document.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, errors.Wrap(errors.EConfig, "decode isa spec: "+err.Error(), err)
	}
	return spec, nil
}

// LoadSpec reads and decodes the ISA spec at path.
func LoadSpec(filesystem fs.FS, path string) (Spec, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		msg := "failed to read isa spec"
		if os.IsNotExist(err) {
			msg = "isa spec not found"
		}
		return Spec{}, errors.WrapWithDetails(errors.EConfig, msg, err, map[string]string{"path": path})
	}
	spec, err := ParseSpec(data)
	if err != nil {
		if ae, ok := errors.AsArchtestError(err); ok {
			return Spec{}, errors.WrapWithDetails(ae.Code, ae.Msg, ae.Cause, map[string]string{"path": path})
		}
		return Spec{}, err
	}
	return spec, nil
}

// Resolve derives the ISA configuration from a hart description.
//
// XLEN is 64 if 64 is among the supported widths, otherwise 32. Extensions
// follow CanonicalExtensions, each included iff its letter appears in the
// ISA string after the "RV<xlen>" prefix. Fails with E_CONFIG when no
// supported width (32 or 64) is present.
func Resolve(h HartSpec) (Config, error) {
	var xlen int
	switch {
	case slices.Contains(h.SupportedXLEN, 64):
		xlen = 64
	case slices.Contains(h.SupportedXLEN, 32):
		xlen = 32
	default:
		return Config{}, errors.NewWithDetails(errors.EConfig,
			fmt.Sprintf("no supported register width in supported_xlen %v (want 32 or 64)", h.SupportedXLEN),
			map[string]string{"field": "hart0.supported_xlen"})
	}

	letters := extensionLetters(h.ISA)
	cfg := Config{XLEN: xlen, ABI: ABI32}
	if xlen == 64 {
		cfg.ABI = ABI64
	}
	for _, e := range CanonicalExtensions {
		if strings.ContainsRune(letters, e) {
			cfg.Extensions = append(cfg.Extensions, e)
		}
	}
	return cfg, nil
}

// extensionLetters returns the single-letter extension part of an ISA string:
// upper-cased, with the RV32/RV64 prefix and any Z/S/X multi-letter
// extensions (which follow an underscore or start with Z, S or X) dropped.
func extensionLetters(isa string) string {
	s := strings.ToUpper(strings.TrimSpace(isa))
	for _, p := range []string{"RV32", "RV64", "RV128", "RV"} {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	if i := strings.IndexAny(s, "_ZSX"); i >= 0 {
		s = s[:i]
	}
	return s
}
